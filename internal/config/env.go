package config

import (
	"os"
	"strconv"
	"strings"
)

// ApplyEnv fills config gaps from the environment. File values win over env
// except for PORT, which hosting platforms assign at runtime and which must
// therefore override the configured health address.
//
// Recognized variables:
//
//	BOT_TOKEN, TOKEN  telegram.token fallback
//	OWNER_IDS         comma separated owner user IDs fallback
//	PORT              health listen port (":<port>")
//	PUBLIC_URL        keepalive target fallback
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		if v := strings.TrimSpace(os.Getenv("BOT_TOKEN")); v != "" {
			cfg.Telegram.Token = v
		} else if v := strings.TrimSpace(os.Getenv("TOKEN")); v != "" {
			cfg.Telegram.Token = v
		}
	}

	if len(cfg.Telegram.OwnerUserIDs) == 0 {
		for _, part := range strings.Split(os.Getenv("OWNER_IDS"), ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				continue
			}
			cfg.Telegram.OwnerUserIDs = append(cfg.Telegram.OwnerUserIDs, id)
		}
	}

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.Health.Addr = ":" + strings.TrimPrefix(v, ":")
	}

	if v := strings.TrimSpace(os.Getenv("PUBLIC_URL")); v != "" {
		if cfg.Keepalive == nil {
			cfg.Keepalive = &KeepaliveConfig{Enabled: true}
		}
		if strings.TrimSpace(cfg.Keepalive.URL) == "" {
			cfg.Keepalive.URL = v
		}
	}
}
