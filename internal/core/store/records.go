package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modlens/modlens/internal/core"
)

// UpsertRecord persists the last-known-good snapshot of a record. Records
// without a payload are skipped; the store only ever holds resolved data.
func (s *Store) UpsertRecord(ctx context.Context, record *core.ModRecord) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if record == nil || record.Payload == nil {
		return nil
	}

	key := strings.TrimSpace(record.Key)
	if key == "" {
		return errors.New("record key is required")
	}

	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("encode mod record: %w", err)
	}

	var fetchedAt int64
	if record.LastFetchedAt != nil {
		fetchedAt = record.LastFetchedAt.UTC().Unix()
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO mod_records (key, payload, last_fetched_at, stale_after)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			last_fetched_at = excluded.last_fetched_at,
			stale_after = excluded.stale_after
	`, key, string(payload), fetchedAt, record.StaleAfter.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store mod record: %w", err)
	}

	return nil
}

// GetRecord returns the persisted snapshot for key, or nil when absent.
func (s *Store) GetRecord(ctx context.Context, key string) (*core.ModRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("record key is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT key, payload, last_fetched_at, stale_after
		FROM mod_records
		WHERE key = ?
	`, key)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch mod record: %w", err)
	}

	return record, nil
}

// ListRecords returns all persisted snapshots ordered by key.
func (s *Store) ListRecords(ctx context.Context) ([]*core.ModRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT key, payload, last_fetched_at, stale_after
		FROM mod_records
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("list mod records: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	var records []*core.ModRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mod record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mod records: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*core.ModRecord, error) {
	var (
		key        string
		payload    string
		fetchedAt  int64
		staleAfter int64
	)

	if err := row.Scan(&key, &payload, &fetchedAt, &staleAfter); err != nil {
		return nil, err
	}

	var decoded core.ModPayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("decode mod record: %w", err)
	}

	record := &core.ModRecord{
		Key:        key,
		Payload:    &decoded,
		FetchState: core.FetchStateStale,
		StaleAfter: time.Unix(staleAfter, 0).UTC(),
	}
	if fetchedAt > 0 {
		fetched := time.Unix(fetchedAt, 0).UTC()
		record.LastFetchedAt = &fetched
	}

	return record, nil
}
