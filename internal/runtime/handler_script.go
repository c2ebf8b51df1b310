package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pellmont/luapp/internal/value"
)

// handlerResultDelimiter separates a handler invocation's return value from
// its echoed mutable argument on stdout.
const handlerResultDelimiter = "\x01"

// InvokeHandler loads handlerSource (expected to evaluate to a callable, per
// the --handler contract) and calls it as handlerFn(message, args...).
// echoArgIndex, if greater than zero, names a 1-based position in args whose
// value is reported back after the call alongside the return value, so a
// caller can observe in-place mutation of a table argument (paths, env)
// passed by reference inside the Lua call. It returns the handler's return
// value and, if requested, the echoed argument, each decoded from its
// serialized literal into a Go value by EvalLiteral.
func (s Subprocess) InvokeHandler(ctx context.Context, handlerSource, message string, args []interface{}, echoArgIndex int) (ret interface{}, echoed interface{}, err error) {
	var argLits []string
	for _, a := range args {
		lit, err := value.Serialize(a, false)
		if err != nil {
			return nil, nil, fmt.Errorf("handler argument: %w", err)
		}
		argLits = append(argLits, lit)
	}
	msgLit, err := value.Serialize(message, false)
	if err != nil {
		return nil, nil, err
	}

	var sb strings.Builder
	sb.WriteString(preludeSource)
	sb.WriteString("\nlocal handlerFn = (function()\n")
	sb.WriteString(handlerSource)
	sb.WriteString("\nend)()\n")
	sb.WriteString("local __args = {" + strings.Join(argLits, ", ") + "}\n")
	sb.WriteString("local __ret = handlerFn(" + msgLit + ", (table.unpack or unpack)(__args))\n")
	sb.WriteString("io.write(serializeValue(__ret))\n")
	if echoArgIndex > 0 {
		sb.WriteString("io.write(\"" + handlerResultDelimiter + "\")\n")
		sb.WriteString("io.write(serializeValue(__args[" + strconv.Itoa(echoArgIndex) + "]))\n")
	}

	cmd := exec.CommandContext(ctx, s.bin())
	cmd.Stdin = strings.NewReader(sb.String())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, nil, fmt.Errorf("handler: %s", msg)
	}

	parts := strings.SplitN(stdout.String(), handlerResultDelimiter, 2)
	ret, err = EvalLiteral(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("handler return value: %w", err)
	}
	if len(parts) == 2 {
		echoed, err = EvalLiteral(parts[1])
		if err != nil {
			return nil, nil, fmt.Errorf("handler argument echo: %w", err)
		}
	}
	return ret, echoed, nil
}
