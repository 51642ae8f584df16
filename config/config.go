package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// EnvPrefix prefixes every environment variable read by Load, e.g.
// HERMIT_PORT or HERMIT_MAX_LINES.
const EnvPrefix = "HERMIT"

// Config holds all application configuration.
type Config struct {
	Host          string        `config:"host"`
	Port          int           `config:"port"`
	MaxLines      int           `config:"max.lines"`
	SocketTimeout time.Duration `config:"socket.timeout"`
	LogLevel      string        `config:"log.level"`
	LogBuffer     int           `config:"log.buffer"`
	StaticPrefix  string        `config:"static.prefix"`
	StaticDir     string        `config:"static.dir"`
	Env           string        `config:"env"`

	// File is the JSON file the rest was loaded from, if any.
	File string `config:"-"`
}

// Level returns the parsed log level. Load has already validated it.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// New loads configuration from the command line, the environment and an
// optional JSON file, exiting on bad input.
func New() *Config {
	cfg, err := Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Load builds a Config from args. Precedence, lowest first: defaults, the
// -config JSON file, HERMIT_* environment variables, flags given in args.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("hermit", flag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host", "127.0.0.1", "interface to bind")
	fs.IntVar(&cfg.Port, "port", 9999, "TCP port to listen on")
	fs.IntVar(&cfg.MaxLines, "max-lines", 0, "maximum number of lines (0 = twice the CPU count)")
	fs.DurationVar(&cfg.SocketTimeout, "socket-timeout", 10*time.Second, "read/write deadline per connection")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	fs.IntVar(&cfg.LogBuffer, "log-buffer", 64, "log lines queued before logging blocks")
	fs.StringVar(&cfg.StaticPrefix, "static-prefix", "/", "route prefix for static files")
	fs.StringVar(&cfg.StaticDir, "static-dir", "", "directory served as static files (empty = off)")
	fs.StringVar(&cfg.File, "config", "", "JSON configuration file")
	fs.StringVar(&cfg.Env, "env", "development", "environment (development/production)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	explicit := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = f.Value.String()
	})

	m := NewManager()
	if cfg.File != "" {
		if err := m.LoadFromJSON(cfg.File); err != nil {
			return nil, err
		}
	}
	m.LoadFromEnv(EnvPrefix)
	if err := m.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.LogBuffer < 0 {
		return fmt.Errorf("invalid log buffer size %d", c.LogBuffer)
	}
	if c.SocketTimeout < 0 {
		return fmt.Errorf("invalid socket timeout %s", c.SocketTimeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
