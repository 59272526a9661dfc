// Package app bootstraps the bot: configuration, logging, storage, the
// Discord session, the command router, and the monitor manager, then blocks
// until shutdown.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/toweroftemptation/towerbot/pkg/config"
	"github.com/toweroftemptation/towerbot/pkg/control"
	"github.com/toweroftemptation/towerbot/pkg/discord/commands"
	"github.com/toweroftemptation/towerbot/pkg/discord/notify"
	"github.com/toweroftemptation/towerbot/pkg/discord/session"
	"github.com/toweroftemptation/towerbot/pkg/guard"
	"github.com/toweroftemptation/towerbot/pkg/log"
	"github.com/toweroftemptation/towerbot/pkg/monitor"
	"github.com/toweroftemptation/towerbot/pkg/premium"
	"github.com/toweroftemptation/towerbot/pkg/sftplog"
	"github.com/toweroftemptation/towerbot/pkg/storage"
	"github.com/toweroftemptation/towerbot/pkg/theme"
	"github.com/toweroftemptation/towerbot/pkg/util"
)

// Run bootstraps the bot and blocks until an interrupt signal.
// configPath may be empty, in which case built-in defaults apply.
func Run(appName, configPath string) error {
	started := time.Now()

	// Logger first so subsequent steps can log meaningfully.
	if err := log.SetupLogger(); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer log.GlobalLogger.Sync()

	if name := util.EnvString("TOWERBOT_THEME", ""); name != "" {
		if err := theme.SetCurrent(name); err != nil {
			log.ApplicationLogger().Warn("failed to apply theme, using default", "theme", name, "err", err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Token from environment, with the $HOME/.local/bin/.env fallback.
	token, loadErr := util.LoadEnvWithLocalBinFallback(cfg.Bot.TokenEnv)
	if loadErr != nil {
		log.ApplicationLogger().Warn(fmt.Sprintf("Warning: %v", loadErr))
	}
	if token == "" {
		return fmt.Errorf("%s not set in environment or .env file", cfg.Bot.TokenEnv)
	}

	log.ApplicationLogger().Info(fmt.Sprintf("🚀 Starting %s v%s...", appName, AppVersion()))

	store := storage.NewStore(cfg.Database.Path)
	if err := store.Init(); err != nil {
		return fmt.Errorf("initialize SQLite store: %w", err)
	}
	defer store.Close()

	// Premium evaluation stack.
	evaluator := premium.NewEvaluator(store, cfg.Premium.FailOpen, cfg.Premium.CacheTTL.Duration)
	premiumManager := premium.NewManager(store, evaluator)

	// Command guard with injected registries.
	metrics := guard.NewMetricsRegistry()
	cooldowns := guard.NewCooldownTracker()
	guardrail := guard.New(evaluator, store, metrics, cooldowns)

	// Discord session.
	log.DiscordLogger().Info("🔑 Authenticating with Discord API...")
	discordSession, err := session.NewDiscordSession(token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	defer discordSession.Close()
	if discordSession.State == nil || discordSession.State.User == nil {
		return fmt.Errorf("discord session state not properly initialized")
	}
	log.DiscordLogger().Info(fmt.Sprintf("✅ Authenticated as %s", discordSession.State.User.Username))

	// Monitor manager over a shared SFTP pool.
	pool := sftplog.NewPool()
	notifier := notify.NewEmbedNotifier(discordSession)
	monitors := monitor.NewManager(store, pool, notifier, monitor.Settings{
		RefreshInterval:      cfg.Monitor.RefreshInterval.Duration,
		StaleAfter:           cfg.Monitor.StaleAfter.Duration,
		InitialBackoff:       cfg.Monitor.InitialBackoff.Duration,
		MaxBackoff:           cfg.Monitor.MaxBackoff.Duration,
		MaxReconnectAttempts: cfg.Monitor.MaxReconnectAttempts,
	}, cfg.SFTP.DialTimeout.Duration)

	// Slash commands.
	router := commands.NewRouter(discordSession)
	router.Register(commands.NewPremiumCommand(premiumManager, evaluator, store, guardrail))
	router.Register(commands.NewServerCommand(store, guardrail))
	router.Register(commands.NewMonitorCommand(monitors, store, guardrail))
	router.Register(commands.NewMetricsCommand(metrics, guardrail))
	discordSession.AddHandler(router.HandleInteraction)
	if err := router.Sync(discordSession.State.User.ID, ""); err != nil {
		return fmt.Errorf("sync slash commands: %w", err)
	}

	// Local ops endpoint, disabled unless [control] addr is set.
	controlServer := control.NewServer(cfg.Control.Addr, monitors, metrics)
	if controlServer != nil {
		if err := controlServer.Start(); err != nil {
			return fmt.Errorf("start control server: %w", err)
		}
		defer controlServer.Stop(context.Background())
	}

	log.ApplicationLogger().Info(fmt.Sprintf("🎯 %s initialized in %s", appName, time.Since(started).Round(time.Millisecond)))
	log.ApplicationLogger().Info(fmt.Sprintf("🤖 %s running. Press Ctrl+C to stop...", appName))

	util.WaitForInterrupt()
	log.ApplicationLogger().Info(fmt.Sprintf("🛑 Stopping %s...", appName))

	monitors.StopAll()
	log.GlobalLogger.Sync()
	return nil
}
