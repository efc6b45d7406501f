package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{
		"telegram": {"token": "123:abc", "owner_user_ids": [42], "poll_timeout": "30s"},
		"logging": {"level": "debug", "console": true},
		"poster": {"send_gap": "500ms", "retry_margin": "1s"}
	}`)

	m := NewConfigManager(path)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("Token = %q, want %q", cfg.Telegram.Token, "123:abc")
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("OwnerUserIDs = %v, want [42]", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Poster.SendGap != "500ms" {
		t.Fatalf("Poster.SendGap = %q, want 500ms", cfg.Poster.SendGap)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_user_ids: [7, 8]
poster:
  settings_path: ./state.json
  drop_on_permanent: true
health:
  enabled: true
  addr: ":9090"
`)

	m := NewConfigManager(path)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 2 {
		t.Fatalf("OwnerUserIDs = %v, want two entries", cfg.Telegram.OwnerUserIDs)
	}
	if !cfg.Poster.DropOnPermanent {
		t.Fatal("Poster.DropOnPermanent = false, want true")
	}
	if cfg.Health.Addr != ":9090" {
		t.Fatalf("Health.Addr = %q, want :9090", cfg.Health.Addr)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{"telegram": {"token": "x"}, "bogus_section": {}}`)

	m := NewConfigManager(path)
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{"telegram": {"token": "x"}} {"telegram": {}}`)

	m := NewConfigManager(path)
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestLoadCommitsAndGetReturns(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{"telegram": {"token": "tok"}}`)

	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() did not return the committed config")
	}
}

func TestSubscribeDropsOldestWhenFull(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{Inline: InlineConfig{Enabled: true}}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got != second {
		t.Fatal("expected newest config after overflow, got older one")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after Unsubscribe")
	}
	// double-unsubscribe must be a no-op
	m.Unsubscribe(ch)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("OWNER_IDS", "11, 22,bad,33")
	t.Setenv("PORT", "8181")
	t.Setenv("PUBLIC_URL", "https://app.example.com")

	cfg := &Config{}
	ApplyEnv(cfg)

	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("Token = %q, want env-token", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 3 || cfg.Telegram.OwnerUserIDs[2] != 33 {
		t.Fatalf("OwnerUserIDs = %v, want [11 22 33]", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Health.Addr != ":8181" {
		t.Fatalf("Health.Addr = %q, want :8181", cfg.Health.Addr)
	}
	if cfg.Keepalive == nil || cfg.Keepalive.URL != "https://app.example.com" {
		t.Fatalf("Keepalive = %+v, want URL from env", cfg.Keepalive)
	}
}

func TestApplyEnvDoesNotOverrideFileToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-token")

	cfg := &Config{Telegram: TelegramConfig{Token: "file-token"}}
	ApplyEnv(cfg)

	if cfg.Telegram.Token != "file-token" {
		t.Fatalf("Token = %q, want file-token (file wins)", cfg.Telegram.Token)
	}
}
