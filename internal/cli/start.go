package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/halim/evo/internal/config"
	"github.com/halim/evo/internal/logger"
	"github.com/halim/evo/internal/metrics"
	"github.com/halim/evo/internal/telegram"
	"github.com/halim/evo/pkg/agent"
	"github.com/halim/evo/pkg/cron"
	"github.com/halim/evo/pkg/dispatch"
	"github.com/halim/evo/pkg/memory"
	"github.com/halim/evo/pkg/sandbox"
	"github.com/halim/evo/pkg/session"
	"github.com/halim/evo/pkg/tools"
	"github.com/halim/evo/pkg/websearch"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the assistant",
	Long: `Start the assistant in the foreground. It connects to Telegram,
loads the tool registry, and serves messages until interrupted.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	closeLog, err := logger.Setup(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closeLog()

	for _, warning := range config.Warnings(cfg) {
		log.Warn().Msg(warning)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		srv := m.Serve(metrics.FormatPort(cfg.Metrics.Port))
		defer srv.Close()
		log.Info().Int("port", cfg.Metrics.Port).Msg("Metrics endpoint started")
	}

	execTimeout := time.Duration(cfg.Tools.ExecTimeoutSeconds) * time.Second
	validator := tools.NewValidator()
	sb := sandbox.New(sandbox.Config{
		MaxResultLen: cfg.Tools.MaxResultLen,
	})

	// Long-term memory.
	memStore, err := memory.New(cfg.Memory.DBPath)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer memStore.Close()

	// Scheduler. Its run callback is bound after the handler exists; tasks
	// only fire once Start is called.
	var handler *telegram.Handler
	scheduler, err := cron.NewService(cron.ServiceOptions{
		StorePath: cfg.Scheduler.StorePath,
		Run: func(ctx context.Context, task cron.Task) error {
			return handler.HandleScheduled(ctx, task)
		},
	})
	if err != nil {
		return fmt.Errorf("open scheduler store: %w", err)
	}

	// Built-in tools that do not need the registry.
	builtins := []tools.Tool{
		sandbox.RunTool(sb, validator, execTimeout),
	}
	builtins = append(builtins, memory.Tools(memStore)...)
	builtins = append(builtins, cron.Tools(scheduler)...)
	if cfg.Search.BraveAPIKey != "" {
		search, err := websearch.NewClient(websearch.Config{APIKey: cfg.Search.BraveAPIKey})
		if err != nil {
			return fmt.Errorf("web search client: %w", err)
		}
		builtins = append(builtins, websearch.Tool(search))
	}

	// Built-in names are reserved in the store so a custom tool can never
	// shadow one.
	reserved := []string{"create_tool", "update_tool", "delete_tool", "list_tools", "view_tool_code"}
	for _, t := range builtins {
		reserved = append(reserved, t.Schema().Name)
	}

	store, err := tools.NewStore(cfg.Tools.Dir, reserved)
	if err != nil {
		return fmt.Errorf("open tool store: %w", err)
	}

	registry, err := tools.NewRegistry(tools.RegistryConfig{
		Store:       store,
		Validator:   validator,
		Runtime:     sb,
		ExecTimeout: execTimeout,
	})
	if err != nil {
		return err
	}
	for _, t := range registry.MutationTools() {
		if err := registry.RegisterBuiltin(t); err != nil {
			return fmt.Errorf("register built-in: %w", err)
		}
	}
	for _, t := range builtins {
		if err := registry.RegisterBuiltin(t); err != nil {
			return fmt.Errorf("register built-in: %w", err)
		}
	}
	if err := registry.Load(); err != nil {
		return fmt.Errorf("load tool registry: %w", err)
	}
	customCount := len(registry.Snapshot().Names()) - len(registry.BuiltinNames())
	m.CustomToolsLoaded.Set(float64(customCount))
	log.Info().Int("custom_tools", customCount).Msg("Tool registry loaded")

	if cfg.Tools.Watch {
		watcher, err := tools.NewWatcher(tools.WatcherConfig{
			Dir: cfg.Tools.Dir,
			OnChange: func() error {
				if err := registry.Reload(); err != nil {
					return err
				}
				snapshot := registry.Snapshot()
				m.CustomToolsLoaded.Set(float64(len(snapshot.Names()) - len(registry.BuiltinNames())))
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("tool watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("tool watcher: %w", err)
		}
		defer watcher.Stop()
	}

	// Planner. The switcher lets /model change the active model at runtime.
	planner, err := agent.NewSwitcher(cfg.Provider.Name, providerKey(cfg), agent.Options{
		Model:       cfg.Provider.Model,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
	})
	if err != nil {
		return fmt.Errorf("create planner: %w", err)
	}
	log.Info().
		Str("provider", planner.Provider()).
		Str("model", planner.Model()).
		Msg("Planner ready")

	loop, err := dispatch.NewLoop(dispatch.Config{
		Registry:      registry,
		Planner:       planner,
		MaxIterations: cfg.Tools.MaxIterations,
		CallTimeout:   execTimeout,
		Logger:        log.Logger,
		Metrics:       m,
	})
	if err != nil {
		return err
	}

	sessions, err := session.New(cfg.Sessions.Dir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	bot, err := telegram.New(telegram.Config{
		Token:     cfg.Telegram.BotToken,
		Allowlist: cfg.Telegram.Allowlist,
		Logger:    log.Logger,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	handler, err = telegram.NewHandler(telegram.HandlerConfig{
		Loop:         loop,
		Sessions:     sessions,
		Memory:       memStore,
		Sender:       bot,
		ExtraPrompt:  cfg.SystemPrompt,
		HistoryLimit: cfg.Sessions.HistoryLimit,
		DigestFacts:  cfg.Memory.DigestFacts,
		Logger:       log.Logger,
	})
	if err != nil {
		return err
	}
	bot.SetHandler(handler)
	bot.SetCommands(telegram.NewCommands(telegram.CommandsConfig{
		Registry:  registry,
		Sessions:  sessions,
		Scheduler: scheduler,
		Sender:    bot,
		Planner:   planner,
		Aliases:   cfg.Provider.Aliases,
		Logger:    log.Logger,
	}))

	bot.SetPhotoHandler(telegram.NewPhotoHandler(bot, handler))

	// Voice notes need a transcription backend; only OpenAI provides one.
	if cfg.Provider.OpenAIAPIKey != "" {
		transcriber, err := agent.NewTranscriber(cfg.Provider.OpenAIAPIKey, "")
		if err != nil {
			return fmt.Errorf("create transcriber: %w", err)
		}
		bot.SetVoiceHandler(telegram.NewVoiceHandler(bot, transcriber, handler))
	}

	scheduler.Start()
	defer scheduler.Stop()

	bot.Start(ctx)
	defer bot.Stop()

	log.Info().Msg("evo is running; press Ctrl-C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	return nil
}

func providerKey(cfg *config.Config) string {
	if cfg.Provider.Name == "openai" {
		return cfg.Provider.OpenAIAPIKey
	}
	return cfg.Provider.AnthropicAPIKey
}
