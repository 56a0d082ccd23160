package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// PlayedLedger stores one hash per date under adzantune:played:<date>.
type PlayedLedger struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewPlayedLedger creates a ledger on client.
func NewPlayedLedger(client redis.UniversalClient) *PlayedLedger {
	return &PlayedLedger{client: client, now: time.Now}
}

// Played returns the prayers marked on date.
func (l *PlayedLedger) Played(ctx context.Context, date string) (domain.PlayedSet, error) {
	fields, err := l.client.HGetAll(ctx, KeyPlayedPrefix+date).Result()
	if err != nil {
		return nil, domain.NewRepositoryError("played", "ledger", "hgetall failed", err)
	}

	set := make(domain.PlayedSet, len(fields))
	for prayer := range fields {
		set[prayer] = true
	}
	return set, nil
}

// MarkPlayed records prayer on date and refreshes the key's TTL.
func (l *PlayedLedger) MarkPlayed(ctx context.Context, date, prayer string) error {
	if date == "" || prayer == "" {
		return domain.NewValidationError("prayer", prayer, "date and prayer are required")
	}

	key := KeyPlayedPrefix + date
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, prayer, strconv.FormatInt(l.now().Unix(), 10))
		pipe.Expire(ctx, key, LedgerTTL)
		return nil
	})
	if err != nil {
		return domain.NewRepositoryError("mark_played", "ledger", "hset failed", err)
	}
	return nil
}

// Prune deletes every ledger key except keepDate's.
func (l *PlayedLedger) Prune(ctx context.Context, keepDate string) error {
	keep := KeyPlayedPrefix + keepDate

	iter := l.client.Scan(ctx, 0, KeyPlayedPrefix+"*", 100).Iterator()
	var stale []string
	for iter.Next(ctx) {
		if key := iter.Val(); key != keep {
			stale = append(stale, key)
		}
	}
	if err := iter.Err(); err != nil {
		return domain.NewRepositoryError("prune", "ledger", "scan failed", err)
	}

	if len(stale) == 0 {
		return nil
	}
	if err := l.client.Del(ctx, stale...).Err(); err != nil {
		return domain.NewRepositoryError("prune", "ledger", "del failed", err)
	}
	return nil
}

var _ ports.PlayedLedger = (*PlayedLedger)(nil)
