package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{
		"PORT", "GIN_MODE", "SESSION_SECRET", "UPLOAD_DIR", "MAX_FILE_SIZE",
		"DURATION_THRESHOLD_SECONDS", "STORE_BACKEND", "EXECUTOR", "ENGINE", "WORKER_CONCURRENCY",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "5000" {
		t.Fatalf("Port = %q, want 5000", cfg.Port)
	}
	if cfg.UploadDir != "/tmp/uploads" {
		t.Fatalf("UploadDir = %q", cfg.UploadDir)
	}
	if cfg.MaxFileSize != 524288000 {
		t.Fatalf("MaxFileSize = %d", cfg.MaxFileSize)
	}
	if cfg.DurationThresholdSeconds != 300 {
		t.Fatalf("DurationThresholdSeconds = %v", cfg.DurationThresholdSeconds)
	}
	if cfg.StoreBackend != StoreBackendFile || cfg.Executor != ExecutorGoroutine || cfg.Engine != EngineRemote {
		t.Fatalf("unexpected backends: %s %s %s", cfg.StoreBackend, cfg.Executor, cfg.Engine)
	}
	if cfg.SessionSecret == "" {
		t.Fatal("debug mode should fall back to a development session secret")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("DURATION_THRESHOLD_SECONDS", "0")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("EXECUTOR", "asynq")
	t.Setenv("ENGINE", "whispercpp")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DurationThresholdSeconds != 0 {
		t.Fatalf("threshold = %v, want 0", cfg.DurationThresholdSeconds)
	}
	if cfg.StoreBackend != StoreBackendRedis || cfg.Executor != ExecutorAsynq || cfg.Engine != EngineWhisperCPP {
		t.Fatalf("unexpected backends: %s %s %s", cfg.StoreBackend, cfg.Executor, cfg.Engine)
	}
	if cfg.WorkerConcurrency != 2 {
		t.Fatalf("invalid integer should fall back to default, got %d", cfg.WorkerConcurrency)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			GinMode:       "debug",
			UploadDir:     "/tmp/uploads",
			StoreBackend:  StoreBackendFile,
			Executor:      ExecutorGoroutine,
			Engine:        EngineRemote,
			SessionSecret: "secret",
		}
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.StoreBackend = "s3" }, wantErr: "STORE_BACKEND"},
		{name: "unknown executor", mutate: func(c *Config) { c.Executor = "celery" }, wantErr: "EXECUTOR"},
		{name: "unknown engine", mutate: func(c *Config) { c.Engine = "cloud" }, wantErr: "ENGINE"},
		{name: "negative threshold", mutate: func(c *Config) { c.DurationThresholdSeconds = -1 }, wantErr: "DURATION_THRESHOLD_SECONDS"},
		{name: "redis without url", mutate: func(c *Config) { c.StoreBackend = StoreBackendRedis; c.RedisURL = "" }, wantErr: "REDIS_URL"},
		{name: "release without engine url", mutate: func(c *Config) { c.GinMode = "release" }, wantErr: "ENGINE_URL"},
		{name: "release without secret", mutate: func(c *Config) { c.GinMode = "release"; c.SessionSecret = "" }, wantErr: "SESSION_SECRET"},
		{name: "release whisper without model", mutate: func(c *Config) {
			c.GinMode = "release"
			c.Engine = EngineWhisperCPP
		}, wantErr: "WHISPER_MODEL"},
	}
	for _, tc := range cases {
		cfg := base()
		tc.mutate(cfg)
		err := cfg.Validate()
		if tc.wantErr == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tc.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: error = %v, want mention of %s", tc.name, err, tc.wantErr)
		}
	}
}
