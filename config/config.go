// Package config holds the settings of an emulation session.
package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

// Region is a memory range mapped before the firmware runs.
type Region struct {
	Name string `yaml:"name"`
	Base uint32 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

// Config holds the settings of one emulation session.
type Config struct {
	// Firmware is the path of the firmware image, raw binary or ELF.
	Firmware string `yaml:"firmware"`

	// Base is the load address of a raw binary image. ELF images carry
	// their own addresses. Default: 0.
	Base uint32 `yaml:"base"`

	// Memory lists the regions mapped besides the firmware image.
	// Default: the nRF52840 memory map.
	Memory []Region `yaml:"memory"`

	// Deadline bounds the wall-clock time of a run. Default: 20s.
	Deadline time.Duration `yaml:"deadline"`

	// MaxInstructions bounds the number of executed instructions.
	// 0 means unlimited.
	MaxInstructions uint64 `yaml:"max_instructions"`

	// TickInterval is the timer tick period. Default: 1s.
	TickInterval time.Duration `yaml:"tick_interval"`

	// JoinTimeout bounds how long stopping a timer may wait for its tick
	// task. Default: 5s.
	JoinTimeout time.Duration `yaml:"join_timeout"`

	// SVD is an optional device description used for address lookup.
	SVD string `yaml:"svd"`

	// Script is an optional Lua scenario script.
	Script string `yaml:"script"`

	// Verbosity is the log verbosity. 1 logs every MMIO access.
	Verbosity int `yaml:"verbosity"`
}

// DefaultMemory returns the nRF52840 memory map, without flash.
func DefaultMemory() []Region {
	return []Region{
		{Name: "sram", Base: 0x20000000, Size: 0x40000},
		{Name: "ficr", Base: 0xF0000000, Size: 0x1000},
		{Name: "ppb", Base: 0xE0000000, Size: 0x10000},
		{Name: "uicr", Base: 0x10000000, Size: 0x10000},
		{Name: "peripherals", Base: 0x40000000, Size: 0x40000},
		{Name: "gpio", Base: 0x50000000, Size: 0x1000},
		{Name: "excreturn", Base: 0xFFFFF000, Size: 0x1000},
	}
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Memory:       DefaultMemory(),
		Deadline:     20 * time.Second,
		TickInterval: time.Second,
		JoinTimeout:  5 * time.Second,
	}
}

// Load reads a Config from a YAML file. Missing fields keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return c, nil
}

// Save writes the Config to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that the Config can drive a session.
func (c *Config) Validate() error {
	if c.Deadline <= 0 {
		return fmt.Errorf("deadline must be > 0")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be > 0")
	}
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("join_timeout must be > 0")
	}
	if c.Verbosity < 0 {
		return fmt.Errorf("verbosity must be >= 0")
	}

	names := make(map[string]bool, len(c.Memory))
	for _, r := range c.Memory {
		if r.Name == "" {
			return fmt.Errorf("memory region at 0x%08x has no name", r.Base)
		}
		if names[r.Name] {
			return fmt.Errorf("memory region %s defined twice", r.Name)
		}
		names[r.Name] = true

		if r.Size == 0 {
			return fmt.Errorf("memory region %s has zero size", r.Name)
		}
		if uint64(r.Base)+r.Size > 1<<32 {
			return fmt.Errorf("memory region %s extends past the address space", r.Name)
		}
	}

	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Memory = append([]Region(nil), c.Memory...)
	return &clone
}
