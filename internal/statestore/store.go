// Package statestore keeps per-client JSON documents, the server-side
// equivalent of the pages' local storage keys.
package statestore

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Keys of the documents kept per client.
const (
	KeyGallery  = "galleryItems"
	KeyProducts = "products"
)

// ErrInvalidOwner is returned for a blank owner id.
var ErrInvalidOwner = errors.New("statestore: owner is required")

// Store reads and rewrites whole documents. Get returns nil, nil when the
// document does not exist.
type Store interface {
	Get(ctx context.Context, owner, key string) ([]byte, error)
	Put(ctx context.Context, owner, key string, value []byte) error
	Delete(ctx context.Context, owner, key string) error
}

// Memory is an in-process Store used when no database is configured.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

func docKey(owner, key string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", ErrInvalidOwner
	}
	return owner + "\x00" + key, nil
}

func (m *Memory) Get(ctx context.Context, owner, key string) ([]byte, error) {
	k, err := docKey(owner, key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.docs[k]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(ctx context.Context, owner, key string, value []byte) error {
	k, err := docKey(owner, key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[k] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, owner, key string) error {
	k, err := docKey(owner, key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.docs, k)
	m.mu.Unlock()
	return nil
}

var _ Store = (*Memory)(nil)
