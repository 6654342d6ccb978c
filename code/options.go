// Package code provides CodeRunner implementations for model-written
// TypeScript: an in-process runner backed by goja and a subprocess runner that
// hands the snippet to an external interpreter after static validation.
package code

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a runner. Options that do not apply to a runner are ignored.
type Option func(*runnerConfig)

type runnerConfig struct {
	// Shared options.
	timeout   time.Duration
	maxOutput int
	logger    *slog.Logger

	// SubprocessRunner options.
	interpreter   string
	sourceRoot    string
	skillsDir     string
	allowedSkills []string
	envAllow      []string
}

// DefaultMaxOutput is the cumulative output cap of one snippet.
const DefaultMaxOutput = 50 * 1024

// DefaultEnvAllowList names the environment variables a subprocess inherits.
var DefaultEnvAllowList = []string{
	"PATH", "PATHEXT", "SYSTEMROOT", "TEMP", "TMP",
	"HOMEDRIVE", "HOMEPATH", "USERPROFILE",
	"APPDATA", "LOCALAPPDATA", "COMSPEC",
}

func defaultConfig() runnerConfig {
	return runnerConfig{
		timeout:     10 * time.Second,
		maxOutput:   DefaultMaxOutput,
		interpreter: "bun",
		sourceRoot:  ".",
		skillsDir:   "skills",
		envAllow:    append([]string(nil), DefaultEnvAllowList...),
	}
}

func newConfig(opts []Option) runnerConfig {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = nopLogger
	}
	return cfg
}

// WithTimeout sets the default wall-clock limit, used when a request carries
// none. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *runnerConfig) { c.timeout = d }
}

// WithMaxOutput sets the cumulative output cap in bytes. Default: 50 KiB.
func WithMaxOutput(bytes int) Option {
	return func(c *runnerConfig) { c.maxOutput = bytes }
}

// WithLogger sets the structured logger. Default: no output.
func WithLogger(l *slog.Logger) Option {
	return func(c *runnerConfig) { c.logger = l }
}

// WithInterpreter sets the binary that executes the snippet file. Default: "bun".
func WithInterpreter(bin string) Option {
	return func(c *runnerConfig) { c.interpreter = bin }
}

// WithSourceRoot sets the working directory of the subprocess; snippet files
// are written there so relative skill imports resolve. Default: ".".
func WithSourceRoot(dir string) Option {
	return func(c *runnerConfig) { c.sourceRoot = dir }
}

// WithSkillsDir sets the skills directory. A relative path is resolved
// against the source root. Default: "skills".
func WithSkillsDir(dir string) Option {
	return func(c *runnerConfig) { c.skillsDir = dir }
}

// WithAllowedSkills sets the skill names a snippet may import or read.
func WithAllowedSkills(names ...string) Option {
	return func(c *runnerConfig) { c.allowedSkills = append([]string(nil), names...) }
}

// WithEnvSecrets adds variable names (typically API keys used by skills) to
// the environment allow-list.
func WithEnvSecrets(names ...string) Option {
	return func(c *runnerConfig) { c.envAllow = append(c.envAllow, names...) }
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler            { return d }
