package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres stores documents in a single jsonb table keyed by
// (collection, key). Watch is poll-based; the poll interval bounds how stale
// a delivered snapshot can be.
type Postgres struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewPostgres opens a Postgres connection with sane pool defaults and
// ensures the documents table exists.
func NewPostgres(connString string) (*Postgres, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	p := &Postgres{db: db, pollInterval: 2 * time.Second}
	if err := p.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, key)
		)
	`)
	return err
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Ping verifies connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Get unmarshals the document at (collection, key) into dest.
func (p *Postgres) Get(ctx context.Context, collection, key string, dest any) error {
	row := p.db.QueryRowContext(ctx, `
		SELECT doc FROM documents WHERE collection = $1 AND key = $2
	`, collection, key)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Set writes doc under (collection, key), replacing any prior document.
func (p *Postgres) Set(ctx context.Context, collection, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, doc)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, key) DO UPDATE SET
			doc = EXCLUDED.doc,
			updated_at = NOW()
	`, collection, key, raw)
	return err
}

// List returns every document in the collection.
func (p *Postgres) List(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT key, doc FROM documents WHERE collection = $1 ORDER BY key
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		out[key] = json.RawMessage(raw)
	}
	return out, rows.Err()
}

// Delete removes the document at (collection, key) if present.
func (p *Postgres) Delete(ctx context.Context, collection, key string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1 AND key = $2
	`, collection, key)
	return err
}

// Watch polls the collection and delivers a snapshot whenever its contents
// change. Delivery stops when the context is done or cancel is called.
func (p *Postgres) Watch(ctx context.Context, collection string) (<-chan map[string]json.RawMessage, func(), error) {
	out := make(chan map[string]json.RawMessage, 1)
	watchCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()

		var last string
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
			}
			snapshot, err := p.List(watchCtx, collection)
			if err != nil {
				continue
			}
			fingerprint := fingerprintOf(snapshot)
			if fingerprint == last {
				continue
			}
			last = fingerprint
			select {
			case out <- snapshot:
			case <-watchCtx.Done():
				return
			}
		}
	}()

	return out, cancel, nil
}

func fingerprintOf(snapshot map[string]json.RawMessage) string {
	raw, _ := json.Marshal(snapshot)
	return string(raw)
}
