// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
)

// KeyringService is the service name records are filed under in the OS keyring.
const KeyringService = "mcpgate-oauth"

// Record is everything kept for one backend between sign-ins.
type Record struct {
	Metadata     *Metadata `json:"metadata,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	ClientSecret string    `json:"client_secret,omitempty"`
	Tokens       *Tokens   `json:"tokens,omitempty"`
}

// RecordStore persists OAuth records by backend id.
type RecordStore interface {
	// Get returns a not_found error when nothing is stored for backendID.
	Get(ctx context.Context, backendID string) (*Record, error)
	Put(ctx context.Context, backendID string, rec *Record) error
	Delete(ctx context.Context, backendID string) error
}

func notFound(backendID string) error {
	return mcperrors.NewNotFoundError(fmt.Sprintf("no OAuth record for server %s", backendID), nil)
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Get implements RecordStore.
func (s *MemoryStore) Get(_ context.Context, backendID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[backendID]
	if !ok {
		return nil, notFound(backendID)
	}
	return &rec, nil
}

// Put implements RecordStore.
func (s *MemoryStore) Put(_ context.Context, backendID string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[backendID] = *rec
	return nil
}

// Delete implements RecordStore.
func (s *MemoryStore) Delete(_ context.Context, backendID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, backendID)
	return nil
}

// KeyringStore keeps records as JSON in the OS keyring.
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a store under KeyringService.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: KeyringService}
}

// Get implements RecordStore.
func (s *KeyringStore) Get(_ context.Context, backendID string) (*Record, error) {
	raw, err := keyring.Get(s.service, backendID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, notFound(backendID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read OAuth record from keyring: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode OAuth record: %w", err)
	}
	return &rec, nil
}

// Put implements RecordStore.
func (s *KeyringStore) Put(_ context.Context, backendID string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode OAuth record: %w", err)
	}
	if err := keyring.Set(s.service, backendID, string(data)); err != nil {
		return fmt.Errorf("failed to write OAuth record to keyring: %w", err)
	}
	return nil
}

// Delete implements RecordStore. Deleting a missing record is not an error.
func (s *KeyringStore) Delete(_ context.Context, backendID string) error {
	err := keyring.Delete(s.service, backendID)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete OAuth record from keyring: %w", err)
	}
	return nil
}
