// File: cmd/valmon/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/cache"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/chain"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/discord"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/metrics"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/monitor"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/notification"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/server"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/service"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/storage"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config     *config.Config
	logger     *logrus.Logger
	metrics    *metrics.Manager
	cache      cache.Cache
	storage    storage.Storage
	client     *chain.RESTClient
	dispatcher *notification.Dispatcher
	bot        *discord.Bot
	service    *service.Service
	monitor    *monitor.Monitor
	server     *server.HTTPServer
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config:  cfg,
		metrics: metrics.NewManager(),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		app.closeResources()
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging
	if lvl := viper.GetString("log-level"); lvl != "" && viper.IsSet("log-level") {
		logCfg.Level = lvl
	}
	if viper.GetBool("debug") || app.config.App.Debug {
		logCfg.Level = "debug"
	}

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")
	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initializeChainClient(); err != nil {
		return fmt.Errorf("failed to initialize chain client: %w", err)
	}
	if err := app.initializeNotification(); err != nil {
		return fmt.Errorf("failed to initialize notification: %w", err)
	}

	app.monitor = monitor.NewMonitor(app.config, app.client, app.storage, app.dispatcher, nil, app.metrics)
	app.service = service.NewService(app.config, app.client, app.storage, app.dispatcher)

	if app.bot != nil {
		app.bot.WithCommands(app.service)
	}

	if app.config.Server.Enabled {
		app.server = server.NewHTTPServer(&app.config.Server, app.service, app.monitor, app.dispatcher, app.storage, app.metrics)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage connects and migrates the configured database
func (app *Application) initializeStorage() error {
	app.logger.WithField("type", app.config.Storage.Type).Info("Initializing storage")

	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return err
	}
	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	app.storage = storage.NewStorageWithMetrics(store, app.metrics)
	return nil
}

// initializeChainClient builds the REST client and its signing info cache
func (app *Application) initializeChainClient() error {
	c, err := cache.New(&app.config.Cache)
	if err != nil {
		return err
	}
	app.cache = c
	app.client = chain.NewRESTClient(app.config.Monitor.RequestTimeout, c, app.config.Cache.TTL)
	return nil
}

// initializeNotification wires the alert senders: Discord (or the log when no
// bot is configured) is primary, Telegram and webhooks mirror it.
func (app *Application) initializeNotification() error {
	notifCfg := app.config.Notifications

	var primary notification.Sender = notification.NewLogSender()
	if notifCfg.Discord.Enabled && notifCfg.Discord.Token != "" {
		bot, err := discord.NewBot(notifCfg.Discord, nil, app.metrics)
		if err != nil {
			return err
		}
		app.bot = bot
		primary = notification.NewDiscordSender(bot.Session())
	} else {
		app.logger.Warn("Discord is not configured, alerts will only be logged")
	}

	var mirrors []notification.Sender
	if notifCfg.Telegram.Enabled {
		tg, err := notification.NewTelegramBot(notifCfg.Telegram.Token)
		if err != nil {
			return err
		}
		mirrors = append(mirrors, notification.NewTelegramSender(tg, notifCfg.Telegram.ChatID))
	}
	if notifCfg.Webhook.Enabled && len(notifCfg.Webhook.URLs) > 0 {
		mirrors = append(mirrors, notification.NewWebhookSender(notification.WebhookConfig{
			URLs:       notifCfg.Webhook.URLs,
			Headers:    notifCfg.Webhook.Headers,
			MaxRetries: notifCfg.Webhook.MaxRetries,
			RetryDelay: notifCfg.Webhook.RetryDelay,
			Timeout:    notifCfg.Webhook.Timeout,
		}))
	}

	app.dispatcher = notification.NewDispatcher(notification.DispatcherConfig{
		QueueSize:   notifCfg.QueueSize,
		Workers:     notifCfg.Workers,
		SendTimeout: notifCfg.SendTimeout,
	}, primary, mirrors, app.metrics)

	app.logger.WithFields(logrus.Fields{
		"primary": primary.Name(),
		"mirrors": len(mirrors),
	}).Info("Notification dispatcher initialized")
	return nil
}

// Start starts the application. withBot opens the Discord gateway for slash
// commands; alerts only need the REST side of the session.
func (app *Application) Start(withBot bool) error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
		"chains":      len(app.config.Chains),
	}).Info("Starting Cosmos Validator Monitor")

	if err := app.dispatcher.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start notification dispatcher: %w", err)
	}

	if withBot && app.bot != nil {
		if err := app.bot.Start(app.ctx); err != nil {
			return fmt.Errorf("failed to start discord bot: %w", err)
		}
	}

	if app.server != nil {
		if err := app.server.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	if err := app.monitor.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"poll_interval":  app.config.Monitor.PollInterval,
	}).Info("Cosmos Validator Monitor started successfully")
	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping Cosmos Validator Monitor")
	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.monitor != nil {
		if err := app.monitor.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop monitor")
		}
	}

	if app.bot != nil {
		if err := app.bot.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop discord bot")
		}
	}

	app.closeResources()
	app.logger.Info("Cosmos Validator Monitor stopped successfully")
	return nil
}

// closeResources drains queued alerts then releases storage and cache
func (app *Application) closeResources() {
	if app.dispatcher != nil {
		if err := app.dispatcher.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop notification dispatcher")
		}
	}
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close cache")
		}
	}
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "valmon",
	Short:   "Cosmos validator monitor",
	Long:    `Polls Cosmos SDK chains for validator, governance and upgrade changes and alerts Discord channels.`,
	Version: AppVersion,
	RunE:    runMonitor,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor, the Discord bot and the HTTP API",
	RunE:  runMonitor,
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runMonitor is the main command
func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(true); err != nil {
		_ = app.Stop()
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	return app.Stop()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Cosmos Validator Monitor %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Cache: %s\n", cfg.Cache.Type)
		fmt.Printf("Poll interval: %s\n", cfg.Monitor.PollInterval)
		for _, name := range cfg.ChainNames() {
			c := cfg.Chains[name]
			fmt.Printf("Chain %s (%s): %s\n", name, c.ChainID, c.RESTBaseURL)
		}
		return nil
	},
}

// testCmd checks storage, cache and every chain endpoint
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Println("Testing Cosmos Validator Monitor connectivity...")

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("✓ Storage connection successful")

		c, err := cache.New(&cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to create cache: %w", err)
		}
		defer c.Close()
		fmt.Printf("✓ Cache (%s) ready\n", cfg.Cache.Type)

		client := chain.NewRESTClient(cfg.Monitor.RequestTimeout, c, cfg.Cache.TTL)
		failed := 0
		for _, name := range cfg.ChainNames() {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Monitor.RequestTimeout*2)
			height, err := client.GetLatestHeight(ctx, cfg.Chains[name])
			cancel()
			if err != nil {
				failed++
				fmt.Printf("✗ %s: %v\n", name, err)
				continue
			}
			fmt.Printf("✓ %s reachable at height %d\n", name, height)
		}

		if failed > 0 {
			return fmt.Errorf("%d chain(s) unreachable", failed)
		}
		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

// tickCmd runs a single poll tick and exits
var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one poll tick and deliver its alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := NewApplication(cfg)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		defer app.closeResources()

		if err := app.dispatcher.Start(app.ctx); err != nil {
			return err
		}
		result, err := app.monitor.RunTick(cmd.Context())
		if err != nil {
			return fmt.Errorf("tick failed: %w", err)
		}
		return printJSON(result)
	},
}

// pruneCmd removes state no registration points at
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove snapshots and failure counters of unregistered validators",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return err
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		result, err := store.PruneOrphans(ctx)
		if err != nil {
			return fmt.Errorf("prune failed: %w", err)
		}
		return printJSON(result)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(pruneCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
