package preferences

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats.go"
)

// Storage is a string key/value store for persisted overrides.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// KVStorage keeps overrides in a JetStream key/value bucket.
type KVStorage struct {
	kv nats.KeyValue
}

func NewKVStorage(kv nats.KeyValue) *KVStorage {
	return &KVStorage{kv: kv}
}

func (s *KVStorage) Get(key string) (string, bool, error) {
	entry, err := s.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "kv get %s", key)
	}
	return string(entry.Value()), true, nil
}

func (s *KVStorage) Set(key, value string) error {
	if _, err := s.kv.PutString(key, value); err != nil {
		return errors.Wrapf(err, "kv put %s", key)
	}
	return nil
}

func (s *KVStorage) Delete(key string) error {
	if err := s.kv.Delete(key); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return errors.Wrapf(err, "kv delete %s", key)
	}
	return nil
}
