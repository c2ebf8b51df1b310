// Package handler drives the optional --handler callback through its
// four-message protocol: init, beforemeta, aftermeta, filedone.
package handler

import (
	"context"
	"fmt"

	"github.com/pellmont/luapp/internal/runtime"
	"github.com/pellmont/luapp/internal/value"
)

// Handler wraps a loaded host-language handler source, invoked once per
// protocol message through a real host process. Each call is a fresh
// process invocation; the handler's own closures and upvalues therefore do
// not persist across messages, matching the documented contract that only
// the message arguments (paths, env) carry state between calls.
type Handler struct {
	source string
	runner handlerRunner
}

// handlerRunner is satisfied by runtime.Subprocess. It is narrowed to an
// interface here so this package depends only on the capability it needs,
// not the concrete runtime type.
type handlerRunner interface {
	InvokeHandler(ctx context.Context, handlerSource, message string, args []interface{}, echoArgIndex int) (ret interface{}, echoed interface{}, err error)
}

// Load wraps handlerSource for invocation via runner.
func Load(handlerSource string, runner handlerRunner) *Handler {
	return &Handler{source: handlerSource, runner: runner}
}

// Init calls handler("init", paths). The handler may add or remove entries;
// the returned slice reflects its mutation of the paths table.
func (h *Handler) Init(ctx context.Context, paths []string) ([]string, error) {
	arg := stringsToTable(paths)
	_, echoed, err := h.runner.InvokeHandler(ctx, h.source, "init", []interface{}{arg}, 1)
	if err != nil {
		return nil, err
	}
	return tableToStrings(echoed, paths)
}

// BeforeMeta calls handler("beforemeta", path, env). env is the per-file
// metaprogram environment; the handler may mutate it, and the returned
// globals reflect that mutation.
func (h *Handler) BeforeMeta(ctx context.Context, path string, env *runtime.Environment) (map[string]interface{}, error) {
	arg := globalsToTable(env.Globals)
	_, echoed, err := h.runner.InvokeHandler(ctx, h.source, "beforemeta", []interface{}{path, arg}, 2)
	if err != nil {
		return nil, err
	}
	t, ok := echoed.(*value.Table)
	if !ok {
		return env.Globals, nil
	}
	return tableToGlobals(t), nil
}

// AfterMeta calls handler("aftermeta", path, lua). A string return value
// replaces lua; any other non-nil return is an error, per the protocol.
func (h *Handler) AfterMeta(ctx context.Context, path, lua string) (string, error) {
	ret, _, err := h.runner.InvokeHandler(ctx, h.source, "aftermeta", []interface{}{path, lua}, 0)
	if err != nil {
		return "", err
	}
	switch v := ret.(type) {
	case nil:
		return lua, nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("aftermeta handler returned non-string, non-nil value")
	}
}

// FileDone calls handler("filedone", path, outputPath). Its return value is
// informational only and is discarded.
func (h *Handler) FileDone(ctx context.Context, path, outputPath string) error {
	_, _, err := h.runner.InvokeHandler(ctx, h.source, "filedone", []interface{}{path, outputPath}, 0)
	return err
}

func stringsToTable(ss []string) *value.Table {
	t := value.NewTable()
	for i, s := range ss {
		t.Set(i+1, s)
	}
	return t
}

// tableToStrings reads back a possibly-mutated array-of-strings table. If
// echoed isn't a table (the handler replaced it with something else, or the
// call produced no echo), the original paths are kept unchanged.
func tableToStrings(echoed interface{}, fallback []string) ([]string, error) {
	t, ok := echoed.(*value.Table)
	if !ok {
		return fallback, nil
	}
	var out []string
	for i := 1; ; i++ {
		v, ok := t.Get(float64(i))
		if !ok {
			break
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("paths[%d] is not a string after init handler", i)
		}
		out = append(out, s)
	}
	return out, nil
}

func globalsToTable(globals map[string]interface{}) *value.Table {
	t := value.NewTable()
	for k, v := range globals {
		if _, isRaw := v.(runtime.Raw); isRaw {
			// Raw entries name host source, not a serializable value; they
			// are not visible to the handler as ordinary globals.
			continue
		}
		t.Set(k, v)
	}
	return t
}

func tableToGlobals(t *value.Table) map[string]interface{} {
	out := map[string]interface{}{}
	for _, k := range t.Keys() {
		name, ok := k.(string)
		if !ok {
			continue
		}
		v, _ := t.Get(name)
		out[name] = v
	}
	return out
}
