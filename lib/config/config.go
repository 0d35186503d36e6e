// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/crashtrace/lib/fatal"
	"github.com/bureau-foundation/crashtrace/lib/stack"
	"github.com/bureau-foundation/crashtrace/lib/usersig"
	"github.com/bureau-foundation/crashtrace/lib/watchdog"
)

// Config is the crashtrace activation configuration.
type Config struct {
	// Enabled arms the fatal signal handler.
	Enabled bool `yaml:"enabled"`

	// Output is the file dumps are appended to. Empty means standard
	// error. The file is opened at Apply time so that dump-time I/O
	// is a bare write to an already-open descriptor.
	Output string `yaml:"output"`

	// AllThreads selects the all-thread dump form for every engine
	// armed by this config.
	AllThreads bool `yaml:"all_threads"`

	// Header is an additional line written after fatal headers.
	Header string `yaml:"header,omitempty"`

	// Watchdog, when present, arms the hang watchdog.
	Watchdog *WatchdogConfig `yaml:"watchdog,omitempty"`

	// Signals lists user signals to register for dump-on-delivery.
	Signals []SignalConfig `yaml:"signals,omitempty"`
}

// WatchdogConfig arms the watchdog at Apply time.
type WatchdogConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Repeat  bool          `yaml:"repeat"`
	Header  string        `yaml:"header,omitempty"`
}

// SignalConfig registers one user signal at Apply time.
type SignalConfig struct {
	// Signal is a name ("SIGUSR1") or a number ("10").
	Signal string `yaml:"signal"`
	Chain  bool   `yaml:"chain"`
	Header string `yaml:"header,omitempty"`
}

// signalsByName covers the signals a host plausibly dedicates to
// diagnostics. Anything else can be given numerically.
var signalsByName = map[string]syscall.Signal{
	"SIGHUP":    unix.SIGHUP,
	"SIGINT":    unix.SIGINT,
	"SIGQUIT":   unix.SIGQUIT,
	"SIGTRAP":   unix.SIGTRAP,
	"SIGUSR1":   unix.SIGUSR1,
	"SIGUSR2":   unix.SIGUSR2,
	"SIGPIPE":   unix.SIGPIPE,
	"SIGALRM":   unix.SIGALRM,
	"SIGTERM":   unix.SIGTERM,
	"SIGXCPU":   unix.SIGXCPU,
	"SIGXFSZ":   unix.SIGXFSZ,
	"SIGVTALRM": unix.SIGVTALRM,
	"SIGPROF":   unix.SIGPROF,
	"SIGWINCH":  unix.SIGWINCH,
	"SIGIO":     unix.SIGIO,
	"SIGPWR":    unix.SIGPWR,
	"SIGSYS":    unix.SIGSYS,
}

// ParseSignal resolves a signal name or decimal number.
func ParseSignal(value string) (syscall.Signal, error) {
	name := strings.ToUpper(strings.TrimSpace(value))
	if signum, ok := signalsByName[name]; ok {
		return signum, nil
	}
	number, err := strconv.Atoi(name)
	if err != nil || number <= 0 {
		return 0, fmt.Errorf("config: unknown signal %q", value)
	}
	return syscall.Signal(number), nil
}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field that could otherwise fail at arm time.
func (c Config) Validate() error {
	if c.Watchdog != nil && c.Watchdog.Timeout <= 0 {
		return fmt.Errorf("watchdog timeout must be positive, got %v", c.Watchdog.Timeout)
	}
	for _, entry := range c.Signals {
		if _, err := ParseSignal(entry.Signal); err != nil {
			return err
		}
	}
	return nil
}

// EnabledFromEnvironment reports whether the CRASHTRACE environment
// variable requests activation (set, and not "0").
func EnabledFromEnvironment() bool {
	value := os.Getenv("CRASHTRACE")
	return value != "" && value != "0"
}

// Apply arms the engines described by the configuration. The returned
// cleanup disarms everything Apply armed and closes the output file.
// On error nothing stays armed.
func Apply(cfg Config, source stack.Source, logger *slog.Logger) (func(), error) {
	fd := unix.Stderr
	var outputFile *os.File
	if cfg.Output != "" {
		var err error
		outputFile, err = os.OpenFile(cfg.Output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("config: opening output %s: %w", cfg.Output, err)
		}
		fd = int(outputFile.Fd())
	}

	var registered []syscall.Signal
	cleanup := func() {
		for _, signum := range registered {
			usersig.Unregister(signum)
		}
		watchdog.Cancel()
		fatal.Disable()
		if outputFile != nil {
			outputFile.Close()
		}
	}

	if cfg.Enabled {
		if err := fatal.Enable(source, fatal.Options{
			Output:     fd,
			AllThreads: cfg.AllThreads,
			Header:     cfg.Header,
		}); err != nil {
			cleanup()
			return nil, err
		}
		logger.Info("fatal handler enabled", "output", cfg.Output, "all_threads", cfg.AllThreads)
	}

	if cfg.Watchdog != nil {
		if err := watchdog.Arm(cfg.Watchdog.Timeout, source, watchdog.Options{
			Repeat:     cfg.Watchdog.Repeat,
			Output:     fd,
			AllThreads: cfg.AllThreads,
			Header:     cfg.Watchdog.Header,
		}); err != nil {
			cleanup()
			return nil, err
		}
		logger.Info("watchdog armed", "timeout", cfg.Watchdog.Timeout, "repeat", cfg.Watchdog.Repeat)
	}

	for _, entry := range cfg.Signals {
		signum, err := ParseSignal(entry.Signal)
		if err != nil {
			cleanup()
			return nil, err
		}
		if err := usersig.Register(signum, source, usersig.Options{
			Output:     fd,
			AllThreads: cfg.AllThreads,
			Chain:      entry.Chain,
			Header:     entry.Header,
		}); err != nil {
			cleanup()
			return nil, fmt.Errorf("config: registering %s: %w", entry.Signal, err)
		}
		registered = append(registered, signum)
		logger.Info("user signal registered", "signal", entry.Signal, "chain", entry.Chain)
	}

	return cleanup, nil
}
