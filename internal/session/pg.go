package session

import (
	"context"

	"algo_bot/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const (
	createSessionsTable = `CREATE TABLE IF NOT EXISTS bot_sessions (
	name       TEXT PRIMARY KEY,
	version    INT NOT NULL,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	selectSession = `SELECT doc FROM bot_sessions WHERE name = $1`
	upsertSession = `INSERT INTO bot_sessions (name, version, doc, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (name) DO UPDATE
SET version = EXCLUDED.version, doc = EXCLUDED.doc, updated_at = now()`
)

// PgStore keeps one row per session name; every Save replaces the row's
// document as a whole.
type PgStore struct {
	tx   db.TxManager
	name string
}

func NewPgStore(tx db.TxManager, name string) *PgStore {
	return &PgStore{tx: tx, name: name}
}

func (s *PgStore) Target() string { return "postgres:" + s.name }

func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.tx.Conn().Exec(ctx, createSessionsTable); err != nil {
		return errors.Wrap(err, "create bot_sessions")
	}
	return nil
}

func (s *PgStore) Load(ctx context.Context) (map[string]any, error) {
	var doc []byte
	err := s.tx.Conn().QueryRow(ctx, selectSession, s.name).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select session")
	}
	return Decode(doc)
}

func (s *PgStore) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	return s.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, upsertSession, s.name, Version, string(data))
		return err
	})
}

// Close leaves the pool alone; the postgres module owns it.
func (s *PgStore) Close() error { return nil }
