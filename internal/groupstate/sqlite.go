package groupstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	logx "groupcast/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS group_state (
	group_id TEXT PRIMARY KEY,
	doc      TEXT NOT NULL,
	version  INTEGER NOT NULL
);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg StoreConfig, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Get(ctx context.Context, groupID string) (*GroupState, uint64, error) {
	var (
		doc     string
		version uint64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, version FROM group_state WHERE group_id = ?`, groupID,
	).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	st, err := decodeState(doc)
	if err != nil {
		return nil, 0, fmt.Errorf("group %s: %w", groupID, err)
	}
	return st, version, nil
}

func (s *sqliteStore) Create(ctx context.Context, st *GroupState) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO group_state(group_id, doc, version) VALUES(?,?,1)`,
		st.GroupID, string(doc),
	)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return ErrExists
	}
	return err
}

func (s *sqliteStore) Update(ctx context.Context, st *GroupState, version uint64) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return err
	}
	// Conditional write: only succeeds if nobody bumped the version since
	// the caller's read.
	res, err := s.db.ExecContext(ctx,
		`UPDATE group_state SET doc = ?, version = version + 1
		 WHERE group_id = ? AND version = ?`,
		string(doc), st.GroupID, version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the record vanished or a concurrent writer won.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM group_state WHERE group_id = ?`, st.GroupID,
		).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context) ([]*GroupState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM group_state ORDER BY group_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*GroupState
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		st, err := decodeState(doc)
		if err != nil {
			s.log.Warn("skipping undecodable group state", logx.Err(err))
			continue
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func decodeState(doc string) (*GroupState, error) {
	var st GroupState
	if err := json.Unmarshal([]byte(doc), &st); err != nil {
		return nil, fmt.Errorf("decode state doc: %w", err)
	}
	return &st, nil
}
