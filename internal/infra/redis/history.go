package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/streamware/chat-relay/internal/ratelimit"
)

var _ ratelimit.HistoryStore = (*HistoryStore)(nil)

// HistoryStore keeps the accepted-post history in a Redis sorted set so
// admission state survives relay restarts and can be shared between them.
// Scores are unix milliseconds; members carry a random prefix so identical
// fingerprints recorded in the same millisecond stay distinct entries.
type HistoryStore struct {
	client *goredis.Client
	key    string
}

func NewHistoryStore(client *goredis.Client, name string) (*HistoryStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	normalizedName := strings.TrimSpace(name)
	if normalizedName == "" {
		normalizedName = "default"
	}

	return &HistoryStore{
		client: client,
		key:    fmt.Sprintf("history:%s", normalizedName),
	}, nil
}

func (s *HistoryStore) Append(ctx context.Context, rec ratelimit.Record) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("history store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	member := fmt.Sprintf("%s|%s", uuid.NewString(), rec.Fingerprint)
	err := s.client.ZAdd(ctx, s.key, goredis.Z{
		Score:  float64(rec.At.UnixMilli()),
		Member: member,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (s *HistoryStore) Recent(ctx context.Context, since time.Time) ([]ratelimit.Record, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("history store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	entries, err := s.client.ZRangeByScoreWithScores(ctx, s.key, &goredis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history entries: %w", err)
	}

	records := make([]ratelimit.Record, 0, len(entries))
	for _, entry := range entries {
		member, ok := entry.Member.(string)
		if !ok {
			continue
		}
		records = append(records, ratelimit.Record{
			At:          time.UnixMilli(int64(entry.Score)),
			Fingerprint: memberFingerprint(member),
		})
	}
	return records, nil
}

func (s *HistoryStore) Prune(ctx context.Context, before time.Time) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("history store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	max := fmt.Sprintf("(%d", before.UnixMilli())
	if err := s.client.ZRemRangeByScore(ctx, s.key, "-inf", max).Err(); err != nil {
		return fmt.Errorf("failed to prune history entries: %w", err)
	}
	return nil
}

func memberFingerprint(member string) string {
	parts := strings.SplitN(member, "|", 2)
	if len(parts) != 2 {
		return member
	}
	return parts[1]
}
