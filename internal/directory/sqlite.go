package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "groupcast/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL DEFAULT '',
	can_post INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS groups (
	id           TEXT PRIMARY KEY,
	chat_id      INTEGER NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	last_post_at TEXT
);
CREATE TABLE IF NOT EXISTS templates (
	id        TEXT PRIMARY KEY,
	min_media INTEGER NOT NULL DEFAULT 0,
	max_media INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS template_variants (
	template_id TEXT NOT NULL,
	id          TEXT NOT NULL,
	body        TEXT NOT NULL,
	PRIMARY KEY (template_id, id)
);
CREATE TABLE IF NOT EXISTS media (
	id       TEXT PRIMARY KEY,
	file_ref TEXT NOT NULL DEFAULT ''
);
`

type sqliteDirectory struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Directory, error) {
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
	return &sqliteDirectory{db: db, log: log}, nil
}

func (d *sqliteDirectory) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *sqliteDirectory) ListActiveAccounts(ctx context.Context) ([]Account, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, can_post FROM accounts WHERE can_post = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var (
			a       Account
			canPost int
		)
		if err := rows.Scan(&a.ID, &a.Name, &canPost); err != nil {
			return nil, err
		}
		a.CanPost = canPost != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

func (d *sqliteDirectory) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, chat_id, title, last_post_at FROM groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var (
			g    Group
			last sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.ChatID, &g.Title, &last); err != nil {
			return nil, err
		}
		if last.Valid && last.String != "" {
			t, err := time.Parse(time.RFC3339Nano, last.String)
			if err == nil {
				g.LastPostAt = &t
			} else {
				d.log.Warn("bad last_post_at in groups table",
					logx.String("group", g.ID), logx.String("value", last.String))
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (d *sqliteDirectory) ListTemplates(ctx context.Context) ([]Template, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, min_media, max_media FROM templates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.MinMedia, &t.MaxMedia); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		vars, err := d.listVariants(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Variants = vars
	}
	return out, nil
}

func (d *sqliteDirectory) listVariants(ctx context.Context, templateID string) ([]TextVariant, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, body FROM template_variants WHERE template_id = ? ORDER BY id`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TextVariant
	for rows.Next() {
		var v TextVariant
		if err := rows.Scan(&v.ID, &v.Body); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (d *sqliteDirectory) ListMedia(ctx context.Context) ([]Media, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, file_ref FROM media ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Media
	for rows.Next() {
		var m Media
		if err := rows.Scan(&m.ID, &m.FileRef); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *sqliteDirectory) UpsertAccount(ctx context.Context, a Account) error {
	canPost := 0
	if a.CanPost {
		canPost = 1
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO accounts(id, name, can_post) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, can_post=excluded.can_post`,
		a.ID, a.Name, canPost)
	return err
}

func (d *sqliteDirectory) UpsertGroup(ctx context.Context, g Group) error {
	var last any
	if g.LastPostAt != nil {
		last = g.LastPostAt.Format(time.RFC3339Nano)
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO groups(id, chat_id, title, last_post_at) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET chat_id=excluded.chat_id, title=excluded.title, last_post_at=excluded.last_post_at`,
		g.ID, g.ChatID, g.Title, last)
	return err
}

func (d *sqliteDirectory) UpsertTemplate(ctx context.Context, t Template) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO templates(id, min_media, max_media) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET min_media=excluded.min_media, max_media=excluded.max_media`,
		t.ID, t.MinMedia, t.MaxMedia); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM template_variants WHERE template_id = ?`, t.ID); err != nil {
		return err
	}
	for _, v := range t.Variants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO template_variants(template_id, id, body) VALUES(?,?,?)`,
			t.ID, v.ID, v.Body); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *sqliteDirectory) UpsertMedia(ctx context.Context, m Media) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO media(id, file_ref) VALUES(?,?)
		 ON CONFLICT(id) DO UPDATE SET file_ref=excluded.file_ref`,
		m.ID, m.FileRef)
	return err
}
