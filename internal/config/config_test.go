package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

func newFlagSet(t *testing.T, args []string) (*pflag.FlagSet, *Flags) {
	t.Helper()
	fs := pflag.NewFlagSet("luapp", pflag.ContinueOnError)
	flags := RegisterFlags(fs)
	assert.NoError(t, fs.Parse(args))
	return fs, flags
}

func Test_Load_defaults(t *testing.T) {
	fs, flags := newFlagSet(t, []string{})
	r, err := Load(fs, flags)
	assert.NoError(t, err)
	assert.Equal(t, "lua", r.Driver.OutputExtension)
	assert.False(t, r.Driver.Debug)
	assert.Equal(t, "lua5.1", r.LuaBin)
}

func Test_Load_flagsOverrideDefaults(t *testing.T) {
	fs, flags := newFlagSet(t, []string{"--outputextension=out", "--debug"})
	r, err := Load(fs, flags)
	assert.NoError(t, err)
	assert.Equal(t, "out", r.Driver.OutputExtension)
	assert.True(t, r.Driver.Debug)
}

func Test_Load_envOverridesTomlButFlagOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "luapp.toml")
	assert.NoError(t, os.WriteFile(cfgPath, []byte("outputextension = \"fromtoml\"\n"), 0644))

	t.Setenv(EnvOutputExtension, "fromenv")

	fs, flags := newFlagSet(t, []string{"--config=" + cfgPath})
	r, err := Load(fs, flags)
	assert.NoError(t, err)
	assert.Equal(t, "fromenv", r.Driver.OutputExtension, "env should override the TOML file")

	fs2, flags2 := newFlagSet(t, []string{"--config=" + cfgPath, "--outputextension=fromflag"})
	r2, err := Load(fs2, flags2)
	assert.NoError(t, err)
	assert.Equal(t, "fromflag", r2.Driver.OutputExtension, "an explicit flag should override env")
}

func Test_Load_tomlAloneIsAppliedOverDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "luapp.toml")
	assert.NoError(t, os.WriteFile(cfgPath, []byte("debug = true\nlinenumbers = true\n"), 0644))

	fs, flags := newFlagSet(t, []string{"--config=" + cfgPath})
	r, err := Load(fs, flags)
	assert.NoError(t, err)
	assert.True(t, r.Driver.Debug)
	assert.True(t, r.Driver.AddLineNumbers)
}

func Test_Load_unsetFlagDoesNotClobberEnv(t *testing.T) {
	t.Setenv(EnvSilent, "true")
	fs, flags := newFlagSet(t, []string{})
	r, err := Load(fs, flags)
	assert.NoError(t, err)
	assert.True(t, r.Driver.Silent)
}

func Test_Load_replAndServeFlags(t *testing.T) {
	fs, flags := newFlagSet(t, []string{"--repl"})
	r, err := Load(fs, flags)
	assert.NoError(t, err)
	assert.True(t, r.REPL)
	assert.Empty(t, r.Serve)

	fs2, flags2 := newFlagSet(t, []string{"--serve=:8080"})
	r2, err := Load(fs2, flags2)
	assert.NoError(t, err)
	assert.Equal(t, ":8080", r2.Serve)
}
