package app

import (
	"time"

	"github.com/amirpoya/Telegram-auto/internal/config"
	"github.com/amirpoya/Telegram-auto/internal/runtime/supervisor"
	"github.com/amirpoya/Telegram-auto/internal/transport/telegram/router"
)

// ---- Config ----

type Config = config.Config

type ConfigManager = config.ConfigManager

var NewConfigManager = config.NewConfigManager

// SummarizeConfigChange produces a safe, structured summary of config diffs.
var SummarizeConfigChange = config.SummarizeConfigChange

// ApplyEnv fills config gaps from the environment (token, owners, $PORT,
// $PUBLIC_URL). The reload validator runs it on every accepted config so
// env-provided values survive file edits.
var ApplyEnv = config.ApplyEnv

func parseDurationField(path, raw string) (time.Duration, error) {
	return config.ParseDurationField(path, raw)
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}

// ---- Runtime ----

type Supervisor = supervisor.Supervisor

type SupervisorRegistry = router.SupervisorRegistry

var NewSupervisor = supervisor.New

var NewSupervisorRegistry = router.NewSupervisorRegistry

var WithLogger = supervisor.WithLogger

var WithCancelOnError = supervisor.WithCancelOnError

// ---- Router ----

type Services = router.Services

type CommandManager = router.CommandManager

var NewCommandManager = router.NewCommandManager
