// Package config loads node settings for the mediator.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bobuhiro11/vmsr/msr"
	"github.com/bobuhiro11/vmsr/topology"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is given.
const DefaultPath = "/etc/vmsr/config.yml"

// NoSnapshot as the snapshot path keeps the snapshot in memory only.
const NoSnapshot = "none"

const maxConfigSize = 64 * 1024

var (
	errWorldWritable = errors.New("config file is world-writable")
	errTooLarge      = errors.New("config file too large")
	errBadLogLevel   = errors.New("bad log level")
)

// Config holds node settings. Zero fields take the defaults.
type Config struct {
	// Device is the per-CPU device path, with one %d for the CPU.
	Device string `yaml:"device"`
	// Sysfs is the CPU topology directory.
	Sysfs string `yaml:"sysfs"`
	// CPUInfo is read to pick the register catalog.
	CPUInfo string `yaml:"cpuinfo"`
	// Model overrides CPU detection, e.g. "06_2D".
	Model string `yaml:"model"`
	// Snapshot is where save keeps values for a later restore, or
	// NoSnapshot.
	Snapshot string `yaml:"snapshot"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Device:   msr.SafePath,
		Sysfs:    topology.SysfsRoot,
		CPUInfo:  "/proc/cpuinfo",
		Snapshot: "/run/vmsr/snapshot",
		LogLevel: "info",
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (Config, error) {
	c := Default()

	info, err := os.Stat(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			slog.Debug("no config file, using defaults", "path", path)

			return c, nil
		}

		return c, err
	}

	// The config chooses device paths; anyone able to edit it could point
	// the mediator at a different driver.
	if info.Mode().Perm()&0o002 != 0 {
		return c, fmt.Errorf("%s: %w", path, errWorldWritable)
	}

	if info.Size() > maxConfigSize {
		return c, fmt.Errorf("%s: %d bytes: %w", path, info.Size(), errTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}

	if err := c.Merge(data); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}

	slog.Debug("loaded config", "path", path, "size", info.Size())

	return c, nil
}

// Merge overlays the YAML document data on c. Unknown keys are rejected.
func (c *Config) Merge(data []byte) error {
	var file Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	c.Override(file)

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// Override copies every non-empty field of o into c.
func (c *Config) Override(o Config) {
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}

	set(&c.Device, o.Device)
	set(&c.Sysfs, o.Sysfs)
	set(&c.CPUInfo, o.CPUInfo)
	set(&c.Model, o.Model)
	set(&c.Snapshot, o.Snapshot)
	set(&c.LogLevel, o.LogLevel)
}

// SnapshotPath returns the snapshot file, or "" when persistence is off.
func (c Config) SnapshotPath() string {
	if c.Snapshot == NoSnapshot {
		return ""
	}

	return c.Snapshot
}

// ParseLevel maps a log level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level

	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("%q: %w", s, errBadLogLevel)
	}

	return l, nil
}
