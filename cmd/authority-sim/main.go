package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/wordrush/internal/authoritysim"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	natsURL := flag.String("nats", "", "NATS url for JetStream publishing (empty disables)")
	streamName := flag.String("stream", "WORDRUSH_EVENTS", "JetStream stream name")
	roomIDStr := flag.String("room", "", "pre-create a room with this id")
	playerNames := flag.String("players", "", "comma-separated player names for the pre-created room")
	turnSecs := flag.Int("turn-secs", 15, "turn duration in seconds for the pre-created room")
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
	if *natsURL == "" {
		*natsURL = os.Getenv("NATS_URL")
	}

	hub := authoritysim.NewHub()
	publishers := authoritysim.MultiPublisher{hub}

	if *natsURL != "" {
		jsPub, err := authoritysim.NewJetStreamPublisher(*natsURL, *streamName)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up JetStream publisher")
		}
		defer jsPub.Close()
		publishers = append(publishers, jsPub)
		log.Info().Str("url", *natsURL).Str("stream", *streamName).Msg("publishing row events to JetStream")
	}

	sim := authoritysim.NewSim(clockwork.NewRealClock(), publishers)

	if *roomIDStr != "" {
		roomID, err := uuid.Parse(*roomIDStr)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid -room id")
		}
		specs := buildSpecs(*playerNames)
		if _, err := sim.CreateRoom(roomID, specs, *turnSecs); err != nil {
			log.Fatal().Err(err).Msg("failed to pre-create room")
		}
		log.Info().Str("room_id", roomID.String()).Int("players", len(specs)).Msg("room pre-created")
	}

	srv := authoritysim.NewServer(sim, hub).NewHTTPServer(*addr)

	go func() {
		log.Info().Str("addr", *addr).Msg("authority simulator listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func buildSpecs(names string) []authoritysim.PlayerSpec {
	var specs []authoritysim.PlayerSpec
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		specs = append(specs, authoritysim.PlayerSpec{
			ParticipantID: "guest:" + name,
			Name:          name,
		})
	}
	return specs
}
