//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mediarelay/internal/users"
	logx "mediarelay/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) All(ctx context.Context) ([]users.User, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, email, permissions, settings FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []users.User
	for rows.Next() {
		var (
			u        users.User
			email    sql.NullString
			settings sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.DisplayName, &email, &u.Permissions, &settings); err != nil {
			return nil, err
		}
		u.Email = email.String
		if settings.Valid && settings.String != "" {
			var ns users.NotificationSettings
			if err := json.Unmarshal([]byte(settings.String), &ns); err != nil {
				s.log.Warn("bad user settings json", logx.Int64("user_id", u.ID), logx.Err(err))
			} else {
				u.Settings = &ns
			}
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutUser(ctx context.Context, u users.User) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if u.ID == 0 {
		return errors.New("user id is required")
	}
	var settings any
	if u.Settings != nil {
		b, err := json.Marshal(u.Settings)
		if err != nil {
			return err
		}
		settings = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, display_name, email, permissions, settings) VALUES(?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   display_name=excluded.display_name,
		   email=excluded.email,
		   permissions=excluded.permissions,
		   settings=excluded.settings`,
		u.ID, u.DisplayName, nullStr(u.Email), uint32(u.Permissions), settings,
	)
	return err
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, rec DeliveryRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	ok := 0
	if rec.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(at, agent, kind, recipient, subject, ok, err)
		 VALUES(?,?,?,?,?,?,?)`,
		rec.At.Format(time.RFC3339Nano), rec.Agent, rec.Kind, rec.Recipient,
		rec.Subject, ok, nullStr(rec.Error),
	)
	return err
}

func (s *sqliteStore) PruneDeliveries(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM deliveries WHERE at < ?`, olderThan.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
