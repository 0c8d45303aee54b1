package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mkrell/bridgectl/internal/api"
	"github.com/mkrell/bridgectl/internal/bridge"
	"github.com/mkrell/bridgectl/internal/credstore"
	"github.com/mkrell/bridgectl/internal/driver"
)

// bridgectl config.toml key mapping to runtime settings.
type fileConfig struct {
	LogLevel string `toml:"log_level"`

	ListenAddr string `toml:"listen_addr"`
	AuthToken  string `toml:"auth_token"`

	Driver             string `toml:"driver"`
	LoopbackAutoPairMS int    `toml:"loopback_auto_pair_ms"`

	CredentialDir string `toml:"credential_dir"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisKey      string `toml:"redis_key"`

	RetryDelayMS     int `toml:"retry_delay_ms"`
	RateLimitDelayMS int `toml:"rate_limit_delay_ms"`
	PairingWaitMS    int `toml:"pairing_wait_ms"`
}

// appConfig is the assembled runtime configuration.
type appConfig struct {
	LogLevel string
	Driver   string

	API    api.Config
	Bridge bridge.Config
	Store  credstore.Config

	LoopbackAutoPair time.Duration
}

func defaultAppConfig() appConfig {
	return appConfig{
		Driver: driver.LoopbackName,
		API:    api.DefaultConfig(),
		Bridge: bridge.DefaultConfig(),
		Store:  credstore.Config{Dir: "credentials"},
	}
}

// loadAppConfig overlays config-file keys onto defaults. An empty path keeps
// the defaults.
func loadAppConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return appConfig{}, fmt.Errorf("load bridgectl config: %w", err)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("listen_addr") {
		cfg.API.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("auth_token") {
		cfg.API.AuthToken = strings.TrimSpace(raw.AuthToken)
	}
	if meta.IsDefined("driver") {
		cfg.Driver = strings.TrimSpace(raw.Driver)
	}
	if meta.IsDefined("loopback_auto_pair_ms") {
		cfg.LoopbackAutoPair = time.Duration(raw.LoopbackAutoPairMS) * time.Millisecond
	}
	if meta.IsDefined("credential_dir") {
		cfg.Store.Dir = strings.TrimSpace(raw.CredentialDir)
	}
	if meta.IsDefined("redis_addr") {
		cfg.Store.RedisAddr = strings.TrimSpace(raw.RedisAddr)
	}
	if meta.IsDefined("redis_password") {
		cfg.Store.RedisPassword = raw.RedisPassword
	}
	if meta.IsDefined("redis_db") {
		cfg.Store.RedisDB = raw.RedisDB
	}
	if meta.IsDefined("redis_key") {
		cfg.Store.RedisKey = strings.TrimSpace(raw.RedisKey)
	}
	if meta.IsDefined("retry_delay_ms") {
		cfg.Bridge.Policy.RetryDelay = time.Duration(raw.RetryDelayMS) * time.Millisecond
	}
	if meta.IsDefined("rate_limit_delay_ms") {
		cfg.Bridge.Policy.RateLimitDelay = time.Duration(raw.RateLimitDelayMS) * time.Millisecond
	}
	if meta.IsDefined("pairing_wait_ms") {
		cfg.Bridge.PairingWait = time.Duration(raw.PairingWaitMS) * time.Millisecond
	}

	if !driver.IsRegistered(cfg.Driver) {
		return appConfig{}, fmt.Errorf("load bridgectl config: unknown driver %q (available: %s)",
			cfg.Driver, strings.Join(driver.Available(), ", "))
	}
	return cfg, nil
}
