package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

const (
	suffixLastPull = "/last_pull"
	suffixLastPush = "/last_push"
)

// SaveLastPull saves the timestamp of the last successful pull from a peer
func (s *Storage) SaveLastPull(ctx context.Context, peer string, timestamp int64) error {
	return s.saveTimestamp(peer+suffixLastPull, timestamp)
}

// GetLastPull retrieves the timestamp of the last successful pull from a peer
// Returns 0 if no pull has been performed yet
func (s *Storage) GetLastPull(ctx context.Context, peer string) (int64, error) {
	return s.getTimestamp(peer + suffixLastPull)
}

// SaveLastPush saves the timestamp of the last successful push to a peer
func (s *Storage) SaveLastPush(ctx context.Context, peer string, timestamp int64) error {
	return s.saveTimestamp(peer+suffixLastPush, timestamp)
}

// GetLastPush retrieves the timestamp of the last successful push to a peer
// Returns 0 if no push has been performed yet
func (s *Storage) GetLastPush(ctx context.Context, peer string) (int64, error) {
	return s.getTimestamp(peer + suffixLastPush)
}

func (s *Storage) saveTimestamp(key string, timestamp int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketPeers)
		if bucket == nil {
			return fmt.Errorf("peers bucket not found")
		}

		// Конвертируем int64 в bytes
		timestampBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(timestampBytes, uint64(timestamp))

		if err := bucket.Put([]byte(key), timestampBytes); err != nil {
			return fmt.Errorf("failed to save timestamp %q: %w", key, err)
		}

		return nil
	})
}

func (s *Storage) getTimestamp(key string) (int64, error) {
	var timestamp int64

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketPeers)
		if bucket == nil {
			return fmt.Errorf("peers bucket not found")
		}

		timestampBytes := bucket.Get([]byte(key))
		if timestampBytes == nil {
			// Первый обмен с этим peer-ом
			timestamp = 0
			return nil
		}

		timestamp = int64(binary.BigEndian.Uint64(timestampBytes))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get timestamp %q: %w", key, err)
	}

	return timestamp, nil
}
