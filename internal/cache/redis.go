package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"eiademand/internal/core"
	applog "eiademand/internal/log"
)

const recordKeyPrefix = "eiademand:records:"

// RecordStore keeps raw dataset records in Redis so that several instances
// share one upstream fetch per window.
type RecordStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *applog.Logger
}

// NewRecordStore connects to Redis and verifies the connection.
func NewRecordStore(ctx context.Context, addr string, db int, ttl time.Duration, logger *applog.Logger) (*RecordStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return newRecordStore(client, ttl, logger), nil
}

func newRecordStore(client *redis.Client, ttl time.Duration, logger *applog.Logger) *RecordStore {
	if logger == nil {
		logger = applog.Discard()
	}
	return &RecordStore{
		client: client,
		ttl:    ttl,
		logger: logger.WithComponent(applog.ComponentCache),
	}
}

// GetRecords returns the records stored under key. A missing key is a miss,
// not an error.
func (s *RecordStore) GetRecords(ctx context.Context, key string) ([]core.Record, bool, error) {
	data, err := s.client.Get(ctx, recordKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	records, err := decodeRecords(data)
	if err != nil {
		// Drop the unreadable entry so the next load refetches.
		if delErr := s.client.Del(ctx, recordKeyPrefix+key).Err(); delErr != nil {
			s.logger.WarnContext(ctx, "Failed to drop unreadable shared cache entry",
				"key", key, applog.FieldError, delErr)
		}
		return nil, false, err
	}
	return records, true, nil
}

// SetRecords stores records under key with the store's TTL.
func (s *RecordStore) SetRecords(ctx context.Context, key string, records []core.Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, recordKeyPrefix+key, data, s.ttl).Err()
}

// DeleteRecords removes a stored window.
func (s *RecordStore) DeleteRecords(ctx context.Context, key string) error {
	return s.client.Del(ctx, recordKeyPrefix+key).Err()
}

func (s *RecordStore) Close() error {
	return s.client.Close()
}

func encodeRecords(records []core.Record) ([]byte, error) {
	if records == nil {
		records = []core.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return data, nil
}

// decodeRecords keeps numbers as json.Number, matching what the API client
// produces, so a table built from cached records equals one built from a fetch.
func decodeRecords(data []byte) ([]core.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []core.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}
