package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/mklimuk/task-pilot/pkg/api"
	"github.com/mklimuk/task-pilot/pkg/cache"
	"github.com/mklimuk/task-pilot/pkg/codec"
	"github.com/mklimuk/task-pilot/pkg/config"
	"github.com/mklimuk/task-pilot/pkg/diff"
	"github.com/mklimuk/task-pilot/pkg/fileops"
	"github.com/mklimuk/task-pilot/pkg/gitsync"
	"github.com/mklimuk/task-pilot/pkg/logging"
	"github.com/mklimuk/task-pilot/pkg/notify"
	"github.com/mklimuk/task-pilot/pkg/remote"
	"github.com/mklimuk/task-pilot/pkg/syncer"
	"github.com/mklimuk/task-pilot/pkg/vault"
)

func main() {
	configPath := flag.String("config", "task-pilot.yaml", "Path to YAML config")
	vaultPath := flag.String("vault", "", "Vault root, overrides config")
	dbPath := flag.String("db", "task-pilot.db", "Path to SQLite DB")
	port := flag.String("port", "8080", "HTTP Port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *vaultPath != "" {
		cfg.Vault.Root = *vaultPath
	}
	if cfg.Vault.Root == "" {
		log.Fatal().Msg("vault root is required, set vault.root or -vault")
	}
	if cfg.Remote.Token == "" {
		log.Fatal().Msg("remote token is required, set remote.token or TODOIST_API_TOKEN")
	}

	logging.Setup(cfg.Debug)

	// Storage
	database, err := cache.NewDB(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to DB")
	}
	defer database.Close()

	if err := database.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("failed to init schema")
	}

	ca, err := cache.New(cache.NewRepository(database))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load cache")
	}

	// Vault and codec
	store := vault.NewStore(cfg.Vault.Root, cfg.Vault.Include, cfg.Vault.Exclude)
	cd := codec.New(codec.Options{
		Tag:                 cfg.Sync.Tag,
		AlternativeKeywords: cfg.Sync.AlternativeKeywords,
		VaultName:           store.Name(),
		LinksAppURI:         cfg.Sync.LinksAppURI,
		DateBeforeTag:       cfg.Sync.DateBeforeTag,
		MissingFlag:         cfg.Sync.MissingFlag,
	}, ca)

	svc := remote.NewTodoistClient(cfg.Remote.Token, cfg.Remote.BaseURL)
	editor := fileops.NewEditor(store, cd, ca)
	detector := diff.New(ca, ca)

	var git *gitsync.Manager
	if cfg.Git.Enabled {
		git = gitsync.NewManager(cfg.Vault.Root, cfg.Git.Push)
	}

	fanout := notify.NewFanout(notify.NewLogNotifier())

	engine := syncer.New(&cfg, store, cd, ca, svc, editor, detector, fanout, git,
		logging.Component("syncer"))

	if err := engine.Bootstrap(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap remote state")
	}

	// Chat surfaces (optional)
	if cfg.Notify.TelegramToken != "" {
		tgBot, err := notify.NewTelegramBot(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, engine)
		if err != nil {
			log.Error().Err(err).Msg("failed to create Telegram bot")
		} else if err := tgBot.Start(); err != nil {
			log.Error().Err(err).Msg("failed to start Telegram bot")
		} else {
			log.Info().Msg("Telegram bot started")
			fanout.Add(tgBot)
			defer tgBot.Stop()
		}
	}
	if cfg.Notify.DiscordToken != "" {
		bot, err := notify.NewDiscordBot(cfg.Notify.DiscordToken, cfg.Notify.DiscordChannel, engine)
		if err != nil {
			log.Error().Err(err).Msg("failed to create Discord bot")
		} else if err := bot.Start(); err != nil {
			log.Error().Err(err).Msg("failed to start Discord bot")
		} else {
			log.Info().Msg("Discord bot started")
			fanout.Add(bot)
			defer bot.Stop()
		}
	}

	engine.Start()
	defer engine.Stop()

	router := api.NewRouter(engine, ca)
	server := &http.Server{Addr: ":" + *port, Handler: router}

	go func() {
		log.Info().Str("port", *port).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
