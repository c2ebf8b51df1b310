// Package config merges built-in defaults, an optional TOML file, the
// environment, and CLI flags into the driver.Config every other component
// consumes. No other package under internal reads os.Getenv or pflag
// directly.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"

	"github.com/pellmont/luapp/internal/driver"
)

const (
	EnvOutputExtension = "LUAPP_OUTPUT_EXTENSION"
	EnvLinenumbers     = "LUAPP_LINENUMBERS"
	EnvSilent          = "LUAPP_SILENT"
	EnvDebug           = "LUAPP_DEBUG"
	EnvHandler         = "LUAPP_HANDLER"
	EnvSaveInfo        = "LUAPP_SAVEINFO"
	EnvCache           = "LUAPP_CACHE"
	EnvLuaBin          = "LUAPP_LUA_BIN"
)

// fileConfig mirrors the fields a --config TOML file may set. Field names
// are lowercase to match typical TOML key style.
type fileConfig struct {
	OutputExtension string `toml:"outputextension"`
	LineNumbers     bool   `toml:"linenumbers"`
	Silent          bool   `toml:"silent"`
	Debug           bool   `toml:"debug"`
	Handler         string `toml:"handler"`
	SaveInfo        string `toml:"saveinfo"`
	Cache           string `toml:"cache"`
	LuaBin          string `toml:"lua"`
}

// Flags holds the parsed pflag values for one CLI invocation.
type Flags struct {
	ConfigPath      *string
	OutputExtension *string
	LineNumbers     *bool
	Silent          *bool
	Debug           *bool
	Handler         *string
	SaveInfo        *string
	Cache           *string
	LuaBin          *string
	REPL            *bool
	Serve           *string
}

// RegisterFlags declares every flag named in spec.md §6 and SPEC_FULL.md §6
// on fs, returning handles to their values for use after fs.Parse.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	return &Flags{
		ConfigPath:      fs.String("config", "", "Load a TOML file of default option values."),
		OutputExtension: fs.String("outputextension", "", "Output extension (default lua). Input paths ending in .EXT are rejected."),
		LineNumbers:     fs.Bool("linenumbers", false, "Interleave --[[@N]] annotations in the output."),
		Silent:          fs.Bool("silent", false, "Suppress non-error chatter on stdout."),
		Debug:           fs.Bool("debug", false, "Keep the intermediate metaprogram file; escape newlines in serialized strings for readability."),
		Handler:         fs.String("handler", "", "Load PATH as host-language source; it must evaluate to a callable that receives messages."),
		SaveInfo:        fs.String("saveinfo", "", "After processing, write a serialized info record to PATH."),
		Cache:           fs.String("cache", "", "Enable the rezi-backed incremental cache."),
		LuaBin:          fs.String("lua", "", "Path to the Lua interpreter binary used by the runtime collaborator."),
		REPL:            fs.Bool("repl", false, "Enter the interactive REPL instead of processing paths."),
		Serve:           fs.String("serve", "", "Start the HTTP service bound to ADDR instead of processing paths."),
	}
}

// Resolved is everything Load produces: the driver.Config plus the ambient
// options the driver itself doesn't need (REPL/serve mode, the Lua binary
// path for the runtime collaborator).
type Resolved struct {
	Driver driver.Config
	LuaBin string
	REPL   bool
	Serve  string
}

// Load merges defaults, an optional TOML file, the environment, and flags
// (highest priority last) into a Resolved config.
func Load(fs *pflag.FlagSet, flags *Flags) (Resolved, error) {
	r := Resolved{
		Driver: driver.Config{OutputExtension: driver.DefaultOutputExtension},
		LuaBin: "lua5.1",
	}

	if *flags.ConfigPath != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(*flags.ConfigPath, &fc); err != nil {
			return r, err
		}
		applyFileConfig(&r, fc)
	}

	applyEnv(&r)
	applyFlags(&r, fs, flags)

	return r, nil
}

func applyFileConfig(r *Resolved, fc fileConfig) {
	if fc.OutputExtension != "" {
		r.Driver.OutputExtension = fc.OutputExtension
	}
	if fc.LineNumbers {
		r.Driver.AddLineNumbers = true
	}
	if fc.Silent {
		r.Driver.Silent = true
	}
	if fc.Debug {
		r.Driver.Debug = true
	}
	if fc.Handler != "" {
		r.Driver.HandlerSource = fc.Handler
	}
	if fc.SaveInfo != "" {
		r.Driver.SaveInfoPath = fc.SaveInfo
	}
	if fc.Cache != "" {
		r.Driver.CachePath = fc.Cache
	}
	if fc.LuaBin != "" {
		r.LuaBin = fc.LuaBin
	}
}

func applyEnv(r *Resolved) {
	if v := os.Getenv(EnvOutputExtension); v != "" {
		r.Driver.OutputExtension = v
	}
	if v := os.Getenv(EnvLinenumbers); v != "" {
		r.Driver.AddLineNumbers = envBool(v)
	}
	if v := os.Getenv(EnvSilent); v != "" {
		r.Driver.Silent = envBool(v)
	}
	if v := os.Getenv(EnvDebug); v != "" {
		r.Driver.Debug = envBool(v)
	}
	if v := os.Getenv(EnvHandler); v != "" {
		r.Driver.HandlerSource = v
	}
	if v := os.Getenv(EnvSaveInfo); v != "" {
		r.Driver.SaveInfoPath = v
	}
	if v := os.Getenv(EnvCache); v != "" {
		r.Driver.CachePath = v
	}
	if v := os.Getenv(EnvLuaBin); v != "" {
		r.LuaBin = v
	}
}

func envBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// applyFlags overrides with any flag the user actually passed, using
// Flag.Changed so an unset flag's zero value never clobbers a TOML or
// environment setting, mirroring the teacher's --listen/--secret handling.
func applyFlags(r *Resolved, fs *pflag.FlagSet, flags *Flags) {
	if fs.Lookup("outputextension").Changed {
		r.Driver.OutputExtension = *flags.OutputExtension
	}
	if fs.Lookup("linenumbers").Changed {
		r.Driver.AddLineNumbers = *flags.LineNumbers
	}
	if fs.Lookup("silent").Changed {
		r.Driver.Silent = *flags.Silent
	}
	if fs.Lookup("debug").Changed {
		r.Driver.Debug = *flags.Debug
	}
	if fs.Lookup("handler").Changed {
		r.Driver.HandlerSource = *flags.Handler
	}
	if fs.Lookup("saveinfo").Changed {
		r.Driver.SaveInfoPath = *flags.SaveInfo
	}
	if fs.Lookup("cache").Changed {
		r.Driver.CachePath = *flags.Cache
	}
	if fs.Lookup("lua").Changed {
		r.LuaBin = *flags.LuaBin
	}
	if fs.Lookup("repl").Changed {
		r.REPL = *flags.REPL
	}
	if fs.Lookup("serve").Changed {
		r.Serve = *flags.Serve
	}
}
