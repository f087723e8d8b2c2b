// Package boltdb хранит локальное состояние синхронизации: идентификатор
// устройства и отметки последнего обмена с каждым peer-ом. Это состояние
// лежит отдельно от записей, чтобы его потеря не трогала данные.
package boltdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	// BoltDB bucket names
	bucketDevice = []byte("device")
	bucketPeers  = []byte("peers")
)

const keyDeviceID = "device_id"

// Storage represents BoltDB sync state storage
type Storage struct {
	db *bbolt.DB
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDevice); err != nil {
			return fmt.Errorf("failed to create device bucket: %w", err)
		}

		if _, err := tx.CreateBucketIfNotExists(bucketPeers); err != nil {
			return fmt.Errorf("failed to create peers bucket: %w", err)
		}

		return nil
	})
}

// DeviceID возвращает стабильный идентификатор устройства. При первом
// вызове генерирует UUID и сохраняет его, дальше возвращает сохраненный.
func (s *Storage) DeviceID(ctx context.Context) (string, error) {
	var id string

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDevice)
		if bucket == nil {
			return fmt.Errorf("device bucket not found")
		}

		if existing := bucket.Get([]byte(keyDeviceID)); existing != nil {
			id = string(existing)
			return nil
		}

		id = uuid.NewString()
		if err := bucket.Put([]byte(keyDeviceID), []byte(id)); err != nil {
			return fmt.Errorf("failed to save device id: %w", err)
		}

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to get device id: %w", err)
	}

	return id, nil
}
