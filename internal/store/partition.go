package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Entry is one cached response in a named partition.
type Entry struct {
	Partition  string
	RequestKey string
	Status     int
	Header     map[string][]string
	Body       []byte
	StoredAt   time.Time
}

// PutEntry stores e in its partition. An existing entry with the same
// request key is deleted first, so the new row is the newest in insertion order.
func (s *Store) PutEntry(ctx context.Context, e Entry) error {
	header, err := marshalHeader(e.Header)
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	storedAt := e.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	body := e.Body
	if body == nil {
		body = []byte{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put entry: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE partition = ? AND request_key = ?
	`, e.Partition, e.RequestKey); err != nil {
		return fmt.Errorf("put entry: delete previous: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cache_entries (partition, request_key, status, header, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Partition, e.RequestKey, e.Status, header, body, storedAt.UnixMilli()); err != nil {
		return fmt.Errorf("put entry: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put entry: commit: %w", err)
	}
	return nil
}

// MatchEntry looks up requestKey in one partition.
func (s *Store) MatchEntry(ctx context.Context, partition, requestKey string) (*Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT partition, request_key, status, header, body, stored_at
		FROM cache_entries
		WHERE partition = ? AND request_key = ?
	`, partition, requestKey)
	return scanEntry(row)
}

// MatchAny looks up requestKey across the given partitions and returns the
// most recently inserted match.
func (s *Store) MatchAny(ctx context.Context, partitions []string, requestKey string) (*Entry, bool, error) {
	if len(partitions) == 0 {
		return nil, false, nil
	}
	query := `
		SELECT partition, request_key, status, header, body, stored_at
		FROM cache_entries
		WHERE request_key = ? AND partition IN (` + placeholders(len(partitions)) + `)
		ORDER BY seq DESC
		LIMIT 1
	`
	args := make([]any, 0, len(partitions)+1)
	args = append(args, requestKey)
	for _, p := range partitions {
		args = append(args, p)
	}
	return scanEntry(s.db.QueryRowContext(ctx, query, args...))
}

// PartitionKeys returns the request keys of a partition, oldest insertion first.
func (s *Store) PartitionKeys(ctx context.Context, partition string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_key FROM cache_entries
		WHERE partition = ?
		ORDER BY seq ASC
	`, partition)
	if err != nil {
		return nil, fmt.Errorf("partition keys %q: %w", partition, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("partition keys %q: scan: %w", partition, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("partition keys %q: %w", partition, err)
	}
	return keys, nil
}

// DeleteEntry removes one request key from a partition.
func (s *Store) DeleteEntry(ctx context.Context, partition, requestKey string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE partition = ? AND request_key = ?
	`, partition, requestKey)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// DeletePartition removes every entry of a partition.
func (s *Store) DeletePartition(ctx context.Context, partition string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE partition = ?`, partition); err != nil {
		return fmt.Errorf("delete partition %q: %w", partition, err)
	}
	return nil
}

// Partitions returns the names of all non-empty partitions, sorted.
func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT partition FROM cache_entries ORDER BY partition ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("partitions: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("partitions: scan: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func scanEntry(row *sql.Row) (*Entry, bool, error) {
	var (
		e        Entry
		header   []byte
		storedAt int64
	)
	err := row.Scan(&e.Partition, &e.RequestKey, &e.Status, &header, &e.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scan entry: %w", err)
	}
	e.Header, err = unmarshalHeader(header)
	if err != nil {
		return nil, false, fmt.Errorf("scan entry: %w", err)
	}
	e.StoredAt = time.UnixMilli(storedAt)
	return &e, true, nil
}

func placeholders(n int) string {
	b := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
