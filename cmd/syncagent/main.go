// Command syncagent drains an offline operation queue against a bakeops
// server. Point-of-sale clients append mutating requests to the queue file
// while disconnected; the agent replays them in order once the server is
// reachable again.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/breadworks/bakeops/internal/client/syncq"
)

type agentConfig struct {
	ServerURL string `env:"SYNC_SERVER_URL" envDefault:"http://localhost:8080"`
	Token     string `env:"SYNC_TOKEN"`
	QueueFile string `env:"SYNC_QUEUE_FILE" envDefault:"syncq.json"`

	// NetworkQuality mirrors the client's connection class; "slow-2g" and
	// "2g" stretch the replay interval.
	NetworkQuality string `env:"SYNC_NETWORK_QUALITY" envDefault:""`
}

func main() {
	var cfg agentConfig
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	q, err := syncq.Open(cfg.QueueFile)
	if err != nil {
		logger.Error("queue open failed", slog.Any("error", err))
		os.Exit(1)
	}
	rp := syncq.NewReplayer(q, cfg.ServerURL, cfg.Token, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("sync agent starting",
		slog.String("server", cfg.ServerURL),
		slog.String("queue", cfg.QueueFile),
		slog.Int("depth", q.Depth()))

	for {
		n, err := rp.Sync(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("sync pass aborted", slog.Any("error", err))
		}
		if n > 0 {
			logger.Info("sync pass complete", slog.Int("synced", n), slog.Int("depth", q.Depth()))
		}

		select {
		case <-ctx.Done():
			logger.Info("sync agent stopping")
			return
		case <-time.After(q.Interval(cfg.NetworkQuality)):
		}
	}
}
