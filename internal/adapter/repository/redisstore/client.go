// Package redisstore implements the repository ports on Redis so the played
// ledger, playback memory and credentials survive a restart.
package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout.
const (
	KeyPlayedPrefix   = "adzantune:played:" // + YYYY-MM-DD, hash of prayer -> unix time
	KeyPlaybackMemory = "adzantune:playback_memory"
	KeyCredential     = "adzantune:credential"
)

// LedgerTTL bounds how long a day's ledger outlives the day.
const LedgerTTL = 48 * time.Hour

// Config contains connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a client and verifies it with PING.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	logger.Info("redis storage connected", slog.String("addr", cfg.Addr), slog.Int("db", cfg.DB))
	return client, nil
}
