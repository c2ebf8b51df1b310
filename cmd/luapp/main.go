/*
Luapp preprocesses Lua source files, expanding embedded metaprogram syntax
(meta lines, meta blocks, and inline value/code substitutions) by executing
them against a real or embedded Lua runtime.

Usage:

	luapp [flags] path1 [path2 ...]

The flags are:

	--handler=PATH
	    Load PATH as host-language source; it must evaluate to a callable
	    that receives lifecycle messages.
	--linenumbers
	    Interleave --[[@N]] annotations in the output.
	--outputextension=EXT
	    Output extension (default lua). Input paths ending in .EXT are
	    rejected.
	--saveinfo=PATH
	    After processing, write a serialized info record to PATH.
	--silent
	    Suppress non-error chatter on stdout.
	--debug
	    Keep the intermediate metaprogram file; escape newlines in
	    serialized strings for readability.
	--config=PATH
	    Load a TOML file of default option values.
	--cache=PATH
	    Enable the rezi-backed incremental cache.
	--lua=PATH
	    Path to the Lua interpreter binary used by the runtime collaborator.
	--repl
	    Enter the interactive REPL instead of processing paths.
	--serve=ADDR
	    Start the HTTP service bound to ADDR instead of processing paths.

All errors are fatal: the process prints a single diagnostic and exits
non-zero. There is no soft-recovery or continuation.
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/pellmont/luapp/internal/config"
	"github.com/pellmont/luapp/internal/driver"
	"github.com/pellmont/luapp/internal/repl"
	"github.com/pellmont/luapp/internal/runtime"
	"github.com/pellmont/luapp/internal/server"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run contains everything main would otherwise do directly, so it can
// return a code instead of calling os.Exit, keeping this the single place
// in the module that terminates the process.
func run(args []string) int {
	fs := pflag.NewFlagSet("luapp", pflag.ContinueOnError)
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return exitFailure
	}

	resolved, err := config.Load(fs, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return exitFailure
	}

	paths := fs.Args()
	ctx := context.Background()

	rt := runtime.Subprocess{Bin: resolved.LuaBin}
	resolved.Driver.Runtime = rt

	if resolved.Serve != "" {
		if err := server.ListenAndServe(ctx, resolved.Serve, resolved.Driver); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return exitFailure
		}
		return exitSuccess
	}

	if resolved.REPL {
		session := repl.NewSession(rt, os.Stdout, os.Stdin)
		session.Debug = resolved.Driver.Debug
		session.Interactive = isTerminal(os.Stdin)
		if err := session.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return exitFailure
		}
		return exitSuccess
	}

	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no input paths supplied")
		return exitFailure
	}

	d, err := driver.New(resolved.Driver, progressPrinter, rt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return exitFailure
	}

	if err := d.Run(ctx, paths); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return exitFailure
	}

	return exitSuccess
}

func progressPrinter(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
