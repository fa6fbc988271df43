package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mcdev12/wordrush/internal/authority"
	"github.com/mcdev12/wordrush/internal/config"
	"github.com/mcdev12/wordrush/internal/engine"
	"github.com/mcdev12/wordrush/internal/engine/reconcile"
	"github.com/mcdev12/wordrush/internal/engine/statehttp"
	"github.com/mcdev12/wordrush/internal/game"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "wordrush.yaml", "path to config file")
	roomIDStr := flag.String("room", "", "room id to join (required)")
	name := flag.String("name", "", "display name (guest identity)")
	userIDStr := flag.String("user", "", "registered user id (optional)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	roomID, err := uuid.Parse(*roomIDStr)
	if err != nil {
		log.Fatal().Msg("a valid -room id is required")
	}

	identity, err := buildIdentity(*userIDStr, *name)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid identity flags")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := authority.NewHTTPClient(cfg.Authority.BaseURL)

	sources, err := buildSources(roomID, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up reconcile sources")
	}

	hints, err := reconcile.NewHintChannel(roomID, cfg.Reconcile.NATS.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect hint channel")
	}
	sources = append(sources, hints)

	eng := engine.New(client, engine.Options{
		RoomID:            roomID,
		Identity:          identity,
		ClockSyncInterval: cfg.ClockSyncInterval(),
		Grace:             cfg.Grace(),
		Warmup:            cfg.Warmup(),
		Sources:           sources,
		Hints:             hints,
	})

	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start engine")
	}
	defer eng.Stop()

	if cfg.StateAPI.Enabled {
		srv := statehttp.NewServer(cfg.StateAPI.Addr, eng)
		go func() {
			log.Info().Str("addr", cfg.StateAPI.Addr).Msg("state API listening")
			if err := srv.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("state API server stopped")
			}
		}()
		defer srv.Close()
	}

	go renderLoop(ctx, eng)
	go noticeLoop(ctx, eng)

	runInputLoop(ctx, eng)
}

func buildIdentity(userID, name string) (game.Identity, error) {
	if userID != "" {
		id, err := uuid.Parse(userID)
		if err != nil {
			return nil, fmt.Errorf("invalid user id: %w", err)
		}
		return game.Registered{UserID: id, Name: name}, nil
	}
	if name == "" {
		return nil, fmt.Errorf("either -user or -name is required")
	}
	// Guest keys are derived from the name so the same flag joins the same
	// seat across restarts.
	return game.Guest{GuestID: "guest:" + name, Name: name}, nil
}

func buildSources(roomID uuid.UUID, cfg *config.Config) ([]reconcile.Source, error) {
	switch cfg.Reconcile.Source {
	case "jetstream":
		jsCfg := reconcile.DefaultJetStreamConfig()
		jsCfg.URL = cfg.Reconcile.NATS.URL
		if cfg.Reconcile.NATS.StreamName != "" {
			jsCfg.StreamName = cfg.Reconcile.NATS.StreamName
		}
		src, err := reconcile.NewJetStreamSource(roomID, jsCfg)
		if err != nil {
			return nil, err
		}
		return []reconcile.Source{src}, nil

	case "postgres":
		pgCfg := reconcile.DefaultPGListenConfig()
		pgCfg.DatabaseURL = cfg.Reconcile.Postgres.DatabaseURL
		if cfg.Reconcile.Postgres.NotifyChannel != "" {
			pgCfg.NotifyChannel = cfg.Reconcile.Postgres.NotifyChannel
		}
		src, err := reconcile.NewPGListenSource(roomID, pgCfg)
		if err != nil {
			return nil, err
		}
		return []reconcile.Source{src}, nil

	case "websocket":
		wsCfg := reconcile.DefaultWSFeedConfig()
		wsCfg.GatewayURL = cfg.Reconcile.Websocket.GatewayURL
		return []reconcile.Source{reconcile.NewWSFeedSource(roomID, wsCfg)}, nil

	default:
		return nil, fmt.Errorf("unknown reconcile source %q", cfg.Reconcile.Source)
	}
}

// renderLoop prints a one-line status on every state change.
func renderLoop(ctx context.Context, eng *engine.Engine) {
	updates := eng.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			st := eng.EffectiveState()
			if st == nil {
				continue
			}
			switch st.Status {
			case game.StatusPlaying:
				fmt.Printf("\r[turn %d] syllable %q  %2ds left  can_submit=%v    > ",
					st.TurnSeq, st.CurrentSyllable, eng.TimeLeft(), eng.CanSubmit())
			case game.StatusFinished:
				fmt.Println("\ngame over")
			}
		}
	}
}

func noticeLoop(ctx context.Context, eng *engine.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-eng.Notices():
			fmt.Printf("\n! %s\n", n.Message)
		}
	}
}

// runInputLoop reads words (or commands) from stdin until EOF or cancel.
func runInputLoop(ctx context.Context, eng *engine.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: /start to begin, /quit to leave; anything else is submitted as a word")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/start":
			if err := eng.StartGame(ctx); err != nil {
				fmt.Printf("could not start game: %v\n", err)
			}
		default:
			result, err := eng.Submit(ctx, line)
			if err != nil {
				fmt.Printf("submission failed: %v\n", err)
				continue
			}
			if !result.Accepted {
				fmt.Printf("rejected (%s), try again\n", result.Reason)
			}
		}
	}
}
