package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
CHAT:
  BLOCK_CHECK_INTERVAL: 2s
WORKER:
  QUEUE: nightly
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHANGEFEED_DRIVER", "postgres")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Chat.BlockCheckInterval != 2*time.Second {
		t.Errorf("BlockCheckInterval = %v", cfg.Chat.BlockCheckInterval)
	}
	if cfg.Worker.Queue != "nightly" {
		t.Errorf("Worker.Queue = %q", cfg.Worker.Queue)
	}
	if cfg.ChangeFeed.Driver != "postgres" {
		t.Errorf("env override ignored: driver = %q", cfg.ChangeFeed.Driver)
	}
	// 未覆盖的键保留默认值
	if cfg.Chat.ReconnectBackoff != 3*time.Second || cfg.Chat.SubscribeTimeout != 10*time.Second {
		t.Errorf("chat defaults = %+v", cfg.Chat)
	}
	if cfg.APIServer.Port != "8081" || cfg.Server.WebSocketPath != "/ws/chat" {
		t.Errorf("server defaults = %q %q", cfg.APIServer.Port, cfg.Server.WebSocketPath)
	}
	if cfg.Auth.JWTExpiry != 15*time.Minute || cfg.Auth.Issuer == "" {
		t.Errorf("auth defaults = %+v", cfg.Auth)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("an explicit path that does not exist should fail")
	}
}
