// Package driver orchestrates the per-file pipeline: read, lex, transpile,
// execute the metaprogram against a real host runtime, write the result, and
// optionally log progress — spec.md §4.4's eight steps.
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/pellmont/luapp/internal/diag"
	"github.com/pellmont/luapp/internal/handler"
	"github.com/pellmont/luapp/internal/lexer"
	"github.com/pellmont/luapp/internal/runtime"
	"github.com/pellmont/luapp/internal/token"
	"github.com/pellmont/luapp/internal/transpile"
	"github.com/pellmont/luapp/internal/value"
)

// Config holds every option a driver invocation needs, normally produced by
// internal/config from flags, a TOML file, and the environment.
type Config struct {
	OutputExtension string
	AddLineNumbers  bool
	Debug           bool
	Silent          bool

	// HandlerSource is the raw host-language source loaded from
	// --handler=PATH, or empty if no handler was configured.
	HandlerSource string

	SaveInfoPath string
	CachePath    string

	Runtime runtime.HostRuntime
}

// DefaultOutputExtension is used when Config.OutputExtension is unset.
const DefaultOutputExtension = "lua"

// Progress receives non-fatal informational lines (per-file progress),
// suppressed when Config.Silent is set. Nil means discard.
type Progress func(format string, args ...interface{})

// Driver runs the pipeline across a set of input paths.
type Driver struct {
	cfg      Config
	progress Progress
	handler  *handler.Handler
	cache    *cacheStore

	files []FileRecord
}

// FileRecord is one entry of the processing-info log (§6 "Info file
// format").
type FileRecord struct {
	Path                string
	HasPreprocessorCode bool
}

// New builds a Driver. ext defaults to DefaultOutputExtension if cfg's is
// empty. handlerRunner may be nil if cfg.HandlerSource is empty.
func New(cfg Config, progress Progress, handlerRunner handlerRunner) (*Driver, error) {
	if cfg.OutputExtension == "" {
		cfg.OutputExtension = DefaultOutputExtension
	}
	if cfg.Runtime == nil {
		cfg.Runtime = runtime.Mini{}
	}

	d := &Driver{cfg: cfg, progress: progress}

	if cfg.HandlerSource != "" {
		if handlerRunner == nil {
			return nil, fmt.Errorf("handler configured but no runner capable of invoking it was supplied")
		}
		d.handler = handler.Load(cfg.HandlerSource, handlerRunner)
	}

	if cfg.CachePath != "" {
		c, err := loadCache(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		d.cache = c
	}

	return d, nil
}

// handlerRunner mirrors internal/handler's own narrow interface so this
// package doesn't need to import runtime.Subprocess concretely.
type handlerRunner interface {
	InvokeHandler(ctx context.Context, handlerSource, message string, args []interface{}, echoArgIndex int) (ret interface{}, echoed interface{}, err error)
}

func (d *Driver) logf(format string, args ...interface{}) {
	if d.cfg.Silent || d.progress == nil {
		return
	}
	d.progress(format, args...)
}

// Run processes paths in order, as required by §5's strictly-sequential
// contract. It returns the first fatal error encountered; files already
// written before that point stay on disk per §5's partial-output guarantee.
func (d *Driver) Run(ctx context.Context, paths []string) error {
	if err := d.rejectClobberingPaths(paths); err != nil {
		return err
	}

	if d.handler != nil {
		mutated, err := d.handler.Init(ctx, paths)
		if err != nil {
			return fmt.Errorf("init handler: %w", err)
		}
		paths = mutated
	}

	for _, path := range paths {
		outPath, err := d.ProcessFile(ctx, path)
		if err != nil {
			return err
		}
		if d.handler != nil {
			if err := d.handler.FileDone(ctx, path, outPath); err != nil {
				return fmt.Errorf("filedone handler for %s: %w", path, err)
			}
		}
	}

	if d.cfg.SaveInfoPath != "" {
		if err := d.writeInfoFile(); err != nil {
			return err
		}
	}
	if d.cache != nil {
		if err := d.cache.save(d.cfg.CachePath); err != nil {
			return err
		}
	}

	return nil
}

func (d *Driver) rejectClobberingPaths(paths []string) error {
	suffix := "." + d.cfg.OutputExtension
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return diag.New(diag.CLI, p, "input path ends in the configured output extension %q; refusing to process to avoid clobbering", d.cfg.OutputExtension)
		}
	}
	return nil
}

// ProcessFile runs the eight driver steps of §4.4 against a single path and
// returns the output file's path.
func (d *Driver) ProcessFile(ctx context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", diag.New(diag.Driver, path, "%s", err)
	}

	raw = stripBOM(raw)
	shebang, body := stripShebang(raw)
	src := string(body)

	if d.cache != nil {
		if cached, ok := d.cache.lookup(path, src, d.cfg); ok {
			d.logf("%s: unchanged, using cached result", path)
			d.files = append(d.files, FileRecord{Path: path, HasPreprocessorCode: cached.HasPreprocessorCode})
			return cached.OutputPath, nil
		}
	}

	toks, err := lexer.Lex(path, src)
	if err != nil {
		return "", err
	}
	hasPreprocessorCode := containsPPEntry(toks)

	program, err := transpile.Transpile(path, toks, transpile.Options{
		AddLineNumbers: d.cfg.AddLineNumbers,
		Debug:          d.cfg.Debug,
		CompileCheck:   d.cfg.Runtime.CompileCheck,
		Source:         src,
	})
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	metaPath := base + ".meta" + ext
	if err := os.WriteFile(metaPath, []byte(program), 0644); err != nil {
		return "", diag.New(diag.Driver, metaPath, "%s", err)
	}
	if !d.cfg.Debug {
		defer os.Remove(metaPath)
	}

	env := runtime.NewEnvironment()
	if d.handler != nil {
		updated, err := d.handler.BeforeMeta(ctx, path, env)
		if err != nil {
			return "", fmt.Errorf("beforemeta handler for %s: %w", path, err)
		}
		env.Globals = updated
	}

	var out strings.Builder
	var serializeErr error
	sinks := runtime.Sinks{
		OutputLua: func(s string) { out.WriteString(s) },
		OutputValue: func(v interface{}) error {
			lit, err := value.Serialize(v, d.cfg.Debug)
			if err != nil {
				serializeErr = err
				return err
			}
			out.WriteString(lit)
			return nil
		},
		Printf: func(format string, args ...interface{}) {
			d.logf(format, args...)
		},
		FileExists: func(p string) bool {
			_, err := os.Stat(p)
			return err == nil
		},
		GetFileContents: func(p string) (string, bool) {
			b, err := os.ReadFile(p)
			if err != nil {
				return "", false
			}
			return string(b), true
		},
	}

	if err := d.cfg.Runtime.Run(ctx, program, env, sinks); err != nil {
		if serializeErr != nil {
			return "", fmt.Errorf("%s: %w", path, serializeErr)
		}
		return "", diag.At(diag.Driver, metaPath, 0, 0, "", "metaprogram execution failed: %s", err)
	}

	result := out.String()
	if d.handler != nil {
		replaced, err := d.handler.AfterMeta(ctx, path, result)
		if err != nil {
			return "", fmt.Errorf("aftermeta handler for %s: %w", path, err)
		}
		result = replaced
	}

	final := shebang + result
	outPath := base + "." + d.cfg.OutputExtension
	if err := os.WriteFile(outPath, []byte(final), 0644); err != nil {
		return "", diag.New(diag.Driver, outPath, "%s", err)
	}

	if !d.cfg.Runtime.CompileChunk(stripShebangString(final)) {
		return "", diag.New(diag.Driver, outPath, "output does not compile as valid Lua source")
	}

	d.files = append(d.files, FileRecord{Path: path, HasPreprocessorCode: hasPreprocessorCode})

	if d.cache != nil {
		d.cache.record(path, src, d.cfg, cachedResult{OutputPath: outPath, HasPreprocessorCode: hasPreprocessorCode})
	}

	return outPath, nil
}

func containsPPEntry(toks []token.Token) bool {
	for _, t := range toks {
		if t.Kind == token.PPEntry {
			return true
		}
	}
	return false
}

func (d *Driver) writeInfoFile() error {
	filesTable := value.NewTable()
	for i, f := range d.files {
		entry := value.NewTable()
		entry.Set("path", f.Path)
		entry.Set("hasPreprocessorCode", f.HasPreprocessorCode)
		filesTable.Set(i+1, entry)
	}

	info := value.NewTable()
	info.Set("date", time.Now().UTC().Format(time.RFC3339))
	info.Set("files", filesTable)

	lit, err := value.Serialize(info, false)
	if err != nil {
		return err
	}
	content := "return " + lit + "\n"
	if err := os.WriteFile(d.cfg.SaveInfoPath, []byte(content), 0644); err != nil {
		return diag.New(diag.Driver, d.cfg.SaveInfoPath, "%s", err)
	}
	return nil
}

// stripBOM removes a leading UTF-8 byte-order mark, if present, using a real
// decoder rather than a hand-rolled three-byte comparison.
func stripBOM(data []byte) []byte {
	transformed, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		return data
	}
	return transformed
}

// stripShebang removes a leading "#..." line, if present, returning it
// (including its trailing newline) separately so it can be re-prepended to
// the output untouched.
func stripShebang(data []byte) (shebang string, body []byte) {
	if len(data) == 0 || data[0] != '#' {
		return "", data
	}
	idx := strings.IndexByte(string(data), '\n')
	if idx < 0 {
		return string(data), nil
	}
	return string(data[:idx+1]), data[idx+1:]
}

func stripShebangString(s string) string {
	if len(s) == 0 || s[0] != '#' {
		return s
	}
	idx := strings.IndexByte(s, '\n')
	if idx < 0 {
		return ""
	}
	return s[idx+1:]
}
