package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/rtcsub/internal/adapters/http"
	"github.com/dkeye/rtcsub/internal/adapters/rtc"
	signaller "github.com/dkeye/rtcsub/internal/adapters/signal"
	"github.com/dkeye/rtcsub/internal/caps"
	"github.com/dkeye/rtcsub/internal/codec"
	"github.com/dkeye/rtcsub/internal/config"
	"github.com/dkeye/rtcsub/internal/core"
	"github.com/dkeye/rtcsub/internal/graph"
	"github.com/dkeye/rtcsub/internal/metric"
	"github.com/dkeye/rtcsub/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	reg := codec.Default()
	metrics := metric.New()

	g, err := newGraph(cfg, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up graph")
	}
	defer func() {
		if err := g.Close(); err != nil {
			log.Warn().Err(err).Msg("graph close")
		}
	}()

	legs, err := rtc.NewFactory(reg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up webrtc")
	}

	sig := signaller.New(signaller.Config{
		URL:        cfg.Signaller.URL,
		URI:        cfg.Signaller.URI,
		PingPeriod: cfg.Signaller.PingPeriod,
	})

	var filter core.FilterRequester
	if cfg.Filter.Enabled {
		filter = byteCounter(g, metrics)
	}

	sess := session.New(session.Config{
		Signaller: sig,
		Legs:      legs,
		Graph:     g,
		Registry:  reg,
		Filter:    filter,
		Metrics:   metrics,
	})
	if err := sess.SetICEServers(cfg.STUNServer, cfg.TURNServers); err != nil {
		log.Fatal().Err(err).Msg("invalid ice servers")
	}
	log.Info().Strs("audio", sess.SetCodecs(codec.KindAudio, cfg.AudioCodecs)).
		Strs("video", sess.SetCodecs(codec.KindVideo, cfg.VideoCodecs)).
		Msg("codec allow-lists")
	sess.SetMeta(cfg.Meta)
	sess.SetProducerID(cfg.ProducerID)

	if err := sess.Prepare(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare session")
	}
	if err := sess.Activate(); err != nil {
		log.Error().Err(err).Msg("failed to activate session, use /api/session/restart")
	}

	go func() {
		for {
			select {
			case err := <-sess.Errors():
				log.Error().Err(err).Msg("session failed")
			case <-ctx.Done():
				return
			}
		}
	}()

	r := router.SetupRouter(cfg, sess, metrics.Handler())
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("rtcsub server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := sess.Close(); err != nil {
		log.Warn().Err(err).Msg("session close")
	}
	log.Info().Msg("Server exited gracefully")
}

func newGraph(cfg *config.Config, metrics *metric.Metrics) (*graph.Graph, error) {
	accept := make(map[codec.Kind]caps.Set, 2)
	for kind, mode := range map[codec.Kind]string{
		codec.KindAudio: cfg.Downstream.Audio,
		codec.KindVideo: cfg.Downstream.Video,
	} {
		set, err := graph.AcceptFor(mode, kind)
		if err != nil {
			return nil, err
		}
		accept[kind] = set
	}

	gcfg := graph.Config{Accept: accept, OnBytes: metrics.EndpointBytes}
	if dir := cfg.RecordDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("record dir: %w", err)
		}
		gcfg.Consumer = func(name string, _ codec.Kind) graph.Consumer {
			return graph.NewRecorder(dir, name)
		}
		log.Info().Str("dir", dir).Msg("recording endpoints")
	}
	return graph.New(gcfg), nil
}

// byteCounter inserts a pass-through filter that counts payload bytes.
func byteCounter(g *graph.Graph, metrics *metric.Metrics) core.FilterRequester {
	return func(producerID, endpoint string, accepted caps.Set) core.Node {
		n, err := g.CreateNode(core.NodeFilter, core.NodeConfig{
			Transform: func(b core.Buffer) (core.Buffer, bool) {
				switch {
				case b.Frame != nil:
					metrics.FilteredBytes(len(b.Frame))
				case b.Packet != nil:
					metrics.FilteredBytes(len(b.Packet.Payload))
				}
				return b, true
			},
		})
		if err != nil {
			log.Warn().Err(err).Str("endpoint", endpoint).Msg("filter node")
			return nil
		}
		log.Info().Str("producer_id", producerID).Str("endpoint", endpoint).Str("caps", accepted.String()).Msg("filter inserted")
		return n
	}
}
