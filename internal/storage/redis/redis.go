package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/kwell/internal/config"
	"github.com/goodtune/kwell/internal/storage"
	"github.com/redis/go-redis/v9"
)

// recordTTL bounds how long a day's record lives remotely (90 days).
const recordTTL = 90 * 24 * time.Hour

// Store implements storage.RecordStore using Redis
type Store struct {
	client    *redis.Client
	keyPrefix string
	putDaily  *redis.Script
}

// Open creates a new Redis-backed record store
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Host may already carry the port
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "kwell"
	}

	return &Store{
		client:    client,
		keyPrefix: prefix,
		putDaily:  redis.NewScript(putDailyScript),
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// PutDaily writes a record under (user, date), keeping a newer remote copy.
func (s *Store) PutDaily(ctx context.Context, userID string, record storage.DailyRecord) (bool, error) {
	focusSessions := record.FocusSessions
	if focusSessions == nil {
		focusSessions = []storage.FocusSessionRecord{}
	}
	encoded, err := json.Marshal(focusSessions)
	if err != nil {
		return false, fmt.Errorf("encode focus sessions: %w", err)
	}

	keys := []string{s.dailyKey(userID, record.Date)}
	args := []interface{}{
		record.Date,
		formatHours(record.ScreenTimeHours),
		formatHours(record.FocusTimeHours),
		record.Sessions,
		string(encoded),
		record.LastUpdated,
		int64(recordTTL.Seconds()),
	}

	written, err := s.putDaily.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return false, err
	}
	return written == 1, nil
}

// GetDaily fetches the records for the given dates in one pipeline.
func (s *Store) GetDaily(ctx context.Context, userID string, dates []string) ([]storage.DailyRecord, error) {
	if len(dates) == 0 {
		return []storage.DailyRecord{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(dates))
	for i, date := range dates {
		cmds[i] = pipe.HGetAll(ctx, s.dailyKey(userID, date))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	records := make([]storage.DailyRecord, 0, len(dates))
	var corrupt []error
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		record, err := parseDailyRecord(data)
		if err != nil {
			corrupt = append(corrupt, fmt.Errorf("record %s: %w: %w", dates[i], storage.ErrCorruptRecord, err))
			continue
		}
		records = append(records, *record)
	}

	return records, errors.Join(corrupt...)
}

func (s *Store) dailyKey(userID, date string) string {
	return fmt.Sprintf("%s:user:%s:daily:%s", s.keyPrefix, userID, date)
}
