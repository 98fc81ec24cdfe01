// Package config loads boot-time kernel configuration: the MLFQ toggle,
// time-slice length, timer frequency and default priority. A TOML file sets
// defaults; CLI flags registered on top always take precedence, mirroring
// the layering the sentry boot path uses for its own Config.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds every boot-time tunable this kernel reads at start-of-day.
type Config struct {
	// MLFQS selects the multi-level feedback queue scheduler ("-o mlfqs" in
	// the reference kernel's boot option string).
	MLFQS bool `toml:"mlfqs"`

	// TimeSlice is TIME_SLICE: consecutive ticks before a running thread is
	// forcibly yielded.
	TimeSlice int `toml:"time_slice"`

	// TimerFreq is TIMER_FREQ: timer interrupts per simulated second.
	TimerFreq int `toml:"timer_freq"`

	// DefaultPriority is the priority of the initial (boot) thread.
	DefaultPriority int `toml:"default_priority"`

	// LogLevel is passed to klog.SetLevel.
	LogLevel string `toml:"log_level"`
}

// Default returns the kernel's built-in defaults, matching the reference
// source's PRI_DEFAULT=31, TIME_SLICE=4, TIMER_FREQ=100.
func Default() Config {
	return Config{
		MLFQS:           false,
		TimeSlice:       4,
		TimerFreq:       100,
		DefaultPriority: 31,
		LogLevel:        "info",
	}
}

// RegisterFlags registers flags used to populate Config on flagSet, seeded
// with the supplied defaults (typically loaded from a TOML file first).
func RegisterFlags(flagSet *flag.FlagSet, defaults Config) *Config {
	c := defaults
	flagSet.Func("o", "boot option \"mlfqs\" enables the multi-level feedback queue scheduler", func(opt string) error {
		if opt != "mlfqs" {
			return fmt.Errorf("unknown boot option %q", opt)
		}
		c.MLFQS = true
		return nil
	})
	flagSet.IntVar(&c.TimeSlice, "time-slice", c.TimeSlice, "ticks given to a thread before forced yield")
	flagSet.IntVar(&c.TimerFreq, "timer-freq", c.TimerFreq, "timer interrupts per simulated second")
	flagSet.IntVar(&c.DefaultPriority, "default-priority", c.DefaultPriority, "priority of the initial (boot) thread")
	flagSet.StringVar(&c.LogLevel, "log-level", c.LogLevel, "klog level: debug, info, warn")
	return &c
}

// LoadFile reads a TOML configuration file and overlays it onto Default().
// A missing file is not an error: it simply yields the defaults, matching
// the common "config is optional" pattern.
func LoadFile(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return c, nil
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return c, fmt.Errorf("config: decoding %q: %w", path, err)
	}
	return c, nil
}
