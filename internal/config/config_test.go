package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FailsWhenNoAPIKey(t *testing.T) {
	t.Setenv("MAP_API_KEY", "")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadDir(filepath.Join(dir, "config"))
	if err == nil {
		t.Fatal("LoadDir() expected error when no MAP_API_KEY and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadDir() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "MAP_API_KEY") {
		t.Errorf("LoadDir() error = %v, want message containing MAP_API_KEY", err)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	t.Setenv("MAP_API_KEY", "")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "map_api_key: key-from-secrets-file\n")

	cfg, err := LoadDir(filepath.Join(dir, "config"))
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.MapAPIKey != "key-from-secrets-file" {
		t.Errorf("MapAPIKey = %q, want key from secrets file", cfg.MapAPIKey)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	t.Setenv("ENV_NAME", "nonexistent")
	t.Setenv("MAP_API_KEY", "test-key")

	cfg, err := LoadDir(filepath.Join(findProjectRoot(t), "config"))
	if err == nil {
		t.Fatal("LoadDir() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadDir() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("LoadDir() error = %v, want message about config file not found", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MAP_API_KEY", "test-key")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("MODEL_STORE_PATH", "")
	dir := t.TempDir()
	writeEnvFile(t, dir, "server:\n  port: \"9000\"\n")

	cfg, err := LoadDir(filepath.Join(dir, "config"))
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.ServerPort != "9000" {
		t.Errorf("ServerPort = %q, want 9000", cfg.ServerPort)
	}
	if cfg.MapAPITimeout != 10*time.Second {
		t.Errorf("MapAPITimeout = %v, want 10s", cfg.MapAPITimeout)
	}
	if cfg.WeatherAPITimeout != 30*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 30s", cfg.WeatherAPITimeout)
	}
	if cfg.Timezone != "Asia/Shanghai" {
		t.Errorf("Timezone = %q, want Asia/Shanghai", cfg.Timezone)
	}
	if cfg.GeoCacheBackend != "in_memory" {
		t.Errorf("GeoCacheBackend = %q, want in_memory", cfg.GeoCacheBackend)
	}
	if cfg.GeoCacheTTL != 0 {
		t.Errorf("GeoCacheTTL = %v, want 0 (never expire)", cfg.GeoCacheTTL)
	}
	if cfg.DefaultCity != "beijing" || cfg.DefaultDays != 30 {
		t.Errorf("defaults = (%q, %d), want (beijing, 30)", cfg.DefaultCity, cfg.DefaultDays)
	}
	if cfg.MaxDays != 3650 {
		t.Errorf("MaxDays = %d, want 3650", cfg.MaxDays)
	}
	if cfg.ModelStorePath != "" {
		t.Errorf("ModelStorePath = %q, want empty", cfg.ModelStorePath)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	t.Setenv("MAP_API_KEY", "test-key")
	dir := t.TempDir()
	writeEnvFile(t, dir, `
weather_api:
  timeout: "invalid"
map_api:
  timeout: ""
`)

	cfg, err := LoadDir(filepath.Join(dir, "config"))
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.WeatherAPITimeout != 30*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want default 30s", cfg.WeatherAPITimeout)
	}
	if cfg.MapAPITimeout != 10*time.Second {
		t.Errorf("MapAPITimeout = %v, want default 10s", cfg.MapAPITimeout)
	}
}

func TestLoad_ValidationFailsWhenWeatherTimeoutZero(t *testing.T) {
	t.Setenv("MAP_API_KEY", "test-key")
	dir := t.TempDir()
	writeEnvFile(t, dir, "weather_api:\n  timeout: \"0s\"\n")

	cfg, err := LoadDir(filepath.Join(dir, "config"))
	if err == nil {
		t.Fatal("LoadDir() expected error when weather_api.timeout is zero, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadDir() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "weather_api.timeout") {
		t.Errorf("LoadDir() error = %v, want message about weather_api.timeout", err)
	}
}

func TestLoad_RequestTimeoutRaisedToCoverUpstreams(t *testing.T) {
	t.Setenv("MAP_API_KEY", "test-key")
	dir := t.TempDir()
	writeEnvFile(t, dir, `
map_api:
  timeout: "5s"
weather_api:
  timeout: "20s"
request:
  timeout: "3s"
`)

	cfg, err := LoadDir(filepath.Join(dir, "config"))
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.RequestTimeout != 26*time.Second {
		t.Errorf("RequestTimeout = %v, want 26s", cfg.RequestTimeout)
	}
}

func TestLoad_InvalidBackend(t *testing.T) {
	t.Setenv("MAP_API_KEY", "test-key")
	t.Setenv("CACHE_BACKEND", "redis")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	if _, err := LoadDir(filepath.Join(dir, "config")); err == nil {
		t.Fatal("LoadDir() expected error for unsupported cache backend")
	}
}

func TestLoad_DefaultDaysAboveMax(t *testing.T) {
	t.Setenv("MAP_API_KEY", "test-key")
	dir := t.TempDir()
	writeEnvFile(t, dir, "analytics:\n  default_days: 400\n  max_days: 365\n")

	if _, err := LoadDir(filepath.Join(dir, "config")); err == nil {
		t.Fatal("LoadDir() expected error when default_days exceeds max_days")
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("MAP_API_KEY", "test-key")
	dir := t.TempDir()
	writeEnvFile(t, dir, "weather_api:\n  timezone: \"Mars/Olympus\"\n")

	if _, err := LoadDir(filepath.Join(dir, "config")); err == nil {
		t.Fatal("LoadDir() expected error for unknown timezone")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MAP_API_KEY", "env-key")
	t.Setenv("CACHE_BACKEND", "Memcached")
	t.Setenv("MEMCACHED_ADDRS", "mc1:11211,mc2:11211")
	t.Setenv("MODEL_STORE_PATH", "/tmp/runs.db")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "map_api_key: file-key\n")

	cfg, err := LoadDir(filepath.Join(dir, "config"))
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.MapAPIKey != "env-key" {
		t.Errorf("MapAPIKey = %q, want env value to win", cfg.MapAPIKey)
	}
	if cfg.GeoCacheBackend != "memcached" {
		t.Errorf("GeoCacheBackend = %q, want memcached", cfg.GeoCacheBackend)
	}
	if cfg.MemcachedAddrs != "mc1:11211,mc2:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
	if cfg.ModelStorePath != "/tmp/runs.db" {
		t.Errorf("ModelStorePath = %q", cfg.ModelStorePath)
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	t.Setenv("MAP_API_KEY", "")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "not valid: yaml: [[[")

	cfg, err := LoadDir(filepath.Join(dir, "config"))
	if err == nil {
		t.Fatal("LoadDir() expected error for invalid secrets YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadDir() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "secrets") {
		t.Errorf("LoadDir() error = %v, want message about secrets", err)
	}
}

func TestLoad_ProjectDevConfig(t *testing.T) {
	t.Setenv("MAP_API_KEY", "test-key")
	t.Setenv("ENV_NAME", "")
	t.Setenv("CACHE_BACKEND", "")

	cfg, err := LoadDir(filepath.Join(findProjectRoot(t), "config"))
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(cfg.WarmCities) == 0 {
		t.Error("WarmCities empty, want cities from config/dev.yaml")
	}
	if cfg.ArchiveAPIURL == "" || cfg.ForecastAPIURL == "" {
		t.Error("weather API URLs not populated from config/dev.yaml")
	}
}

const minimalEnvYAML = `
server:
  port: "5000"
map_api:
  timeout: "10s"
weather_api:
  timeout: "30s"
request:
  timeout: "60s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
