// Package credentials manages the pool of upstream API credentials. Records
// live in Postgres so quota blocks survive restarts; the in-memory Pool owns
// all runtime state and is the only writer.
package credentials

import (
	"context"
	"errors"
	"strings"
	"time"

	"plangen/internal/infra"
	"plangen/internal/sqlinline"
)

const ProviderGemini = "gemini"

// Record is the persisted form of one credential.
type Record struct {
	ID           string
	Provider     string
	APIKey       string
	BlockedUntil *time.Time
	Fatal        bool
	FatalReason  string
	LastUsedAt   *time.Time
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// List returns all credentials for a provider, including blocked ones; the
// pool decides eligibility.
func (s *Store) List(ctx context.Context, provider string) ([]Record, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QSelectCredentials, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Provider, &r.APIKey, &r.BlockedUntil, &r.Fatal, &r.FatalReason, &r.LastUsedAt); err != nil {
			return nil, err
		}
		r.APIKey = strings.TrimSpace(r.APIKey)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Add upserts a credential and clears any previous block.
func (s *Store) Add(ctx context.Context, id, provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is required")
	}
	if strings.TrimSpace(id) == "" {
		return errors.New("credential id is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QUpsertCredential, id, provider, key)
	return err
}

func (s *Store) MarkBlocked(ctx context.Context, id string, until time.Time) error {
	_, err := s.sql.Exec(ctx, sqlinline.QBlockCredential, id, until)
	return err
}

func (s *Store) MarkFatal(ctx context.Context, id, reason string) error {
	_, err := s.sql.Exec(ctx, sqlinline.QMarkCredentialFatal, id, reason)
	return err
}

func (s *Store) Unblock(ctx context.Context, id string) error {
	_, err := s.sql.Exec(ctx, sqlinline.QUnblockCredential, id)
	return err
}

func (s *Store) MarkUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.sql.Exec(ctx, sqlinline.QTouchCredential, id, at)
	return err
}
