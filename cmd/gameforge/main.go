package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/tatianab/game-forge/internal/config"
	"github.com/tatianab/game-forge/internal/engine"
	"github.com/tatianab/game-forge/internal/gameconfig"
	"github.com/tatianab/game-forge/internal/logger"
	"github.com/tatianab/game-forge/internal/sandbox"
	"github.com/tatianab/game-forge/internal/server"
	"github.com/tatianab/game-forge/internal/session"
	"github.com/tatianab/game-forge/internal/store"
	"github.com/tatianab/game-forge/internal/tui"
)

const defaultOpenAIModel = "gpt-4o-mini"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, logFile, err := logger.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Printf("Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("Exiting")
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	gen, closeGen, err := newGenerator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create generator: %w", err)
	}
	defer closeGen()
	if cfg.APIKey() == "" {
		log.WithField("provider", cfg.Provider).Warn("No API key configured")
	}

	kv, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer kv.Close()

	orch := engine.New(gen, engine.Options{
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
	}, log.WithField("component", "engine"))

	notifier := tui.NewNotifier()
	hub := server.NewHub(log.WithField("component", "hub"))
	res := sandbox.NewResources()
	rt := sandbox.New(hub, res, sandbox.Options{
		LoadTimeout: cfg.LoadTimeout,
		OnState: func(s sandbox.State) {
			hub.SetState(s)
			notifier.Notify(s)
		},
	}, log.WithField("component", "sandbox"))
	hub.SetLoadHandler(rt.NotifyLoaded)

	sess, err := session.New(session.Deps{
		Generator: orch,
		Editor:    gameconfig.NewEditor(log.WithField("component", "config")),
		Runtime:   rt,
		Repo:      store.NewRepository(kv),
		SaveDir:   cfg.SaveDir,
		Log:       log.WithField("component", "session"),
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	srv := server.New(res, hub, log.WithField("component", "server"))
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe(srvCtx, cfg.Addr) }()

	if err := tui.Run(sess, "http://"+cfg.Addr+"/", notifier); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}

	cancel()
	return <-srvErr
}

func newGenerator(ctx context.Context, cfg *config.Config) (engine.Generator, func(), error) {
	if cfg.Provider == config.ProviderOpenAI {
		model := cfg.Model
		if model == "" || model == engine.DefaultGeminiModel {
			model = defaultOpenAIModel
		}
		return engine.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, model), func() {}, nil
	}

	g, err := engine.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		return nil, nil, err
	}
	return g, g.Close, nil
}
