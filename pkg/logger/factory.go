package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format is the handler output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Environment names understood by WithEnvironment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config is the env-loadable logger configuration.
type Config struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Service string `env:"APP_NAME" envDefault:"tabsync"`
	// Level overrides the environment default when set: debug, info, warn or error.
	Level string `env:"LOG_LEVEL"`
}

type profile struct {
	env    string
	level  slog.Level
	format Format
}

var profiles = map[string]profile{
	EnvDevelopment: {EnvDevelopment, slog.LevelDebug, FormatText},
	"dev":          {EnvDevelopment, slog.LevelDebug, FormatText},
	EnvStaging:     {EnvStaging, slog.LevelInfo, FormatJSON},
	"stage":        {EnvStaging, slog.LevelInfo, FormatJSON},
	EnvProduction:  {EnvProduction, slog.LevelInfo, FormatJSON},
	"prod":         {EnvProduction, slog.LevelInfo, FormatJSON},
}

type config struct {
	level      slog.Level
	format     Format
	output     io.Writer
	attrs      []slog.Attr
	source     bool
	extractors []ContextExtractor
}

// Option configures New.
type Option func(*config)

// FromConfig applies the environment profile and the optional level override.
// An unparsable level keeps the profile's level.
func FromConfig(cfg Config) Option {
	return func(c *config) {
		WithEnvironment(cfg.Env, cfg.Service)(c)
		if cfg.Level == "" {
			return
		}
		var l slog.Level
		if err := l.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err == nil {
			c.level = l
		}
	}
}

// WithEnvironment applies the level and format of env and tags every record
// with service and env. Unknown environments fall back to development.
func WithEnvironment(env, service string) Option {
	return func(c *config) {
		p, ok := profiles[strings.ToLower(env)]
		if !ok {
			p = profiles[EnvDevelopment]
		}
		c.level, c.format = p.level, p.format
		if service != "" {
			c.attrs = append(c.attrs, slog.String("service", service))
		}
		c.attrs = append(c.attrs, slog.String("env", p.env))
	}
}

func WithLevel(l slog.Level) Option {
	return func(c *config) { c.level = l }
}

// WithFormat panics on anything but FormatJSON or FormatText.
func WithFormat(f Format) Option {
	switch f {
	case FormatJSON, FormatText:
	default:
		panic(fmt.Sprintf("logger: unknown format %q", f))
	}
	return func(c *config) { c.format = f }
}

func WithTextFormatter() Option { return WithFormat(FormatText) }

func WithJSONFormatter() Option { return WithFormat(FormatJSON) }

// WithOutput ignores a nil writer.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

// WithSource adds the caller's file and line to each record.
func WithSource() Option {
	return func(c *config) { c.source = true }
}

// WithAttr adds attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(c *config) { c.attrs = append(c.attrs, attrs...) }
}

// WithContextExtractors registers extractors run on every record; nils are skipped.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(c *config) {
		for _, ex := range extractors {
			if ex != nil {
				c.extractors = append(c.extractors, ex)
			}
		}
	}
}

// WithContextValue logs ctx.Value(key) under name whenever it is set.
func WithContextValue(name string, key any) Option {
	if name == "" || key == nil {
		return func(*config) {}
	}
	return WithContextExtractors(func(ctx context.Context) (slog.Attr, bool) {
		v := ctx.Value(key)
		return slog.Any(name, v), v != nil
	})
}

// New builds a logger writing JSON at info level to stdout unless told otherwise.
func New(opts ...Option) *slog.Logger {
	cfg := &config{level: slog.LevelInfo, format: FormatJSON, output: os.Stdout}
	for _, opt := range opts {
		opt(cfg)
	}

	ho := &slog.HandlerOptions{Level: cfg.level, AddSource: cfg.source}
	var h slog.Handler = slog.NewJSONHandler(cfg.output, ho)
	if cfg.format == FormatText {
		h = slog.NewTextHandler(cfg.output, ho)
	}
	if len(cfg.attrs) > 0 {
		h = h.WithAttrs(cfg.attrs)
	}
	return slog.New(withExtractors(h, cfg.extractors))
}

// SetAsDefault installs l as the slog default.
func SetAsDefault(l *slog.Logger) {
	slog.SetDefault(l)
}
