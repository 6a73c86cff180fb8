package search

import (
	"context"
	"database/sql"
	"time"

	"algo_bot/internal/hyperopt"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // pure-Go driver
)

// TrialStore keeps every evaluated trial so searches can be compared
// after the fact.
type TrialStore struct {
	db *sql.DB
}

const trialSchema = `
CREATE TABLE IF NOT EXISTS trials (
	run_id     TEXT    NOT NULL,
	number     INTEGER NOT NULL,
	strategy   TEXT    NOT NULL,
	params     TEXT    NOT NULL,
	status     TEXT    NOT NULL,
	loss       REAL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, number)
)`

// OpenTrialStore opens (or creates) the sqlite database at path.
func OpenTrialStore(ctx context.Context, path string) (*TrialStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, trialSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create trials table")
	}
	return &TrialStore{db: db}, nil
}

func (s *TrialStore) Close() error {
	return s.db.Close()
}

func (s *TrialStore) Save(ctx context.Context, runID, strategy string, t hyperopt.Trial) error {
	p, err := sonic.MarshalString(t.Params)
	if err != nil {
		return errors.Wrap(err, "encode params")
	}
	var loss sql.NullFloat64
	if v, ok := t.Result.LossValue(); ok {
		loss = sql.NullFloat64{Float64: v, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO trials (run_id, number, strategy, params, status, loss, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, t.Number, strategy, p, string(t.Result.Status), loss, time.Now().Unix(),
	)
	return errors.Wrapf(err, "save trial %d", t.Number)
}

// StoredTrial is one row of the trials table.
type StoredTrial struct {
	Number int
	Params map[string]any
	Status string
	Loss   *float64
}

// Trials lists the trials of a run in evaluation order.
func (s *TrialStore) Trials(ctx context.Context, runID string) ([]StoredTrial, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, params, status, loss FROM trials WHERE run_id = ? ORDER BY number`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query trials")
	}
	defer rows.Close()

	var out []StoredTrial
	for rows.Next() {
		var (
			st   StoredTrial
			raw  string
			loss sql.NullFloat64
		)
		if err := rows.Scan(&st.Number, &raw, &st.Status, &loss); err != nil {
			return nil, err
		}
		if err := sonic.UnmarshalString(raw, &st.Params); err != nil {
			return nil, errors.Wrapf(err, "decode trial %d", st.Number)
		}
		if loss.Valid {
			v := loss.Float64
			st.Loss = &v
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
