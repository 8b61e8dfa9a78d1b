package main

import (
	"testing"
	"time"
)

func validServeConfig() *Config {
	cfg := testConfig()
	cfg.triviaDuration = 30 * time.Second
	return cfg
}

func TestConfigValidate(t *testing.T) {
	if err := validServeConfig().validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	for name, mutate := range map[string]func(*Config){
		"port too low":        func(c *Config) { c.port = 0 },
		"port too high":       func(c *Config) { c.port = 70000 },
		"cert without key":    func(c *Config) { c.tlsCert = "cert.pem" },
		"key without cert":    func(c *Config) { c.tlsKey = "key.pem" },
		"zero interval":       func(c *Config) { c.triviaInterval = 0 },
		"zero history":        func(c *Config) { c.historyLimit = 0 },
		"skip chance above 1": func(c *Config) { c.botSkipChance = 1.5 },
		"negative skip":       func(c *Config) { c.botSkipChance = -0.1 },
		"inverted delays":     func(c *Config) { c.botDelayMin = 5 * time.Second; c.botDelayMax = time.Second },
	} {
		cfg := validServeConfig()
		mutate(cfg)
		if err := cfg.validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestConfigScheme(t *testing.T) {
	cfg := validServeConfig()
	if cfg.scheme() != "http" {
		t.Fatalf("expected http without tls, got %q", cfg.scheme())
	}

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	if cfg.scheme() != "https" {
		t.Fatalf("expected https with tls, got %q", cfg.scheme())
	}
}
