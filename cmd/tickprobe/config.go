package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/avolia/tickprobe/probe"
)

type fileConfig struct {
	TickRate        int    `toml:"tick_rate"`
	SendInterval    string `toml:"send_interval"`
	Duration        string `toml:"duration"`
	Login           string `toml:"login"`
	Version         string `toml:"version"`
	Architecture    string `toml:"architecture"`
	RenderingDevice string `toml:"rendering_device"`
}

// loadConfig overlays settings from a TOML file onto cfg. Only keys present
// in the file override; flags and defaults survive otherwise.
func loadConfig(path string, cfg probe.Config) (probe.Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return probe.Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("tick_rate") {
		cfg.TickRate = raw.TickRate
	}

	if meta.IsDefined("send_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SendInterval))
		if err != nil {
			return probe.Config{}, fmt.Errorf("parse send_interval: %w", err)
		}
		cfg.SendInterval = d
	}

	if meta.IsDefined("duration") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Duration))
		if err != nil {
			return probe.Config{}, fmt.Errorf("parse duration: %w", err)
		}
		cfg.Duration = d
	}

	if meta.IsDefined("login") {
		cfg.Login = strings.TrimSpace(raw.Login)
	}

	if meta.IsDefined("version") {
		cfg.Version = strings.TrimSpace(raw.Version)
	}

	if meta.IsDefined("architecture") {
		cfg.Architecture = strings.TrimSpace(raw.Architecture)
	}

	if meta.IsDefined("rendering_device") {
		cfg.RenderingDevice = strings.TrimSpace(raw.RenderingDevice)
	}

	return cfg, nil
}
