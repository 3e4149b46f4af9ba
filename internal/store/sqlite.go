package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time keeps sqlite from returning SQLITE_BUSY
	d.SetMaxOpenConns(1)
	s := &SQLiteDB{db: d}
	if err := s.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT NOT NULL UNIQUE, email TEXT UNIQUE, password TEXT NOT NULL, role TEXT NOT NULL DEFAULT 'user', created_at TEXT NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS notes (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL, content TEXT NOT NULL, created_at TEXT NOT NULL);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("sqlite init: %w", err)
		}
	}
	return nil
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func (s *SQLiteDB) CreateUser(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO users(username,email,password,role,created_at) VALUES(?,?,?,?,?)`,
		u.Username, nullable(u.Email), u.Password, u.Role, formatTime(now))
	if err != nil {
		if isSQLiteUnique(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	u.CreatedAt = now
	return nil
}

func (s *SQLiteDB) getUser(ctx context.Context, where string, arg interface{}) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,username,email,password,role,created_at FROM users WHERE `+where+` = ?`, arg)
	var u User
	var email sql.NullString
	var created string
	if err := row.Scan(&u.ID, &u.Username, &email, &u.Password, &u.Role, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Email = email.String
	u.CreatedAt = parseTime(created)
	return &u, nil
}

func (s *SQLiteDB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *SQLiteDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *SQLiteDB) CreateNote(ctx context.Context, title, content string) (*Note, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO notes(title,content,created_at) VALUES(?,?,?)`, title, content, formatTime(now))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Note{ID: id, Title: title, Content: content, CreatedAt: now}, nil
}

func (s *SQLiteDB) ListNotes(ctx context.Context) ([]*Note, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,title,content,created_at FROM notes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	notes := []*Note{}
	for rows.Next() {
		var n Note
		var created string
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &created); err != nil {
			return nil, err
		}
		n.CreatedAt = parseTime(created)
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}

func (s *SQLiteDB) GetNote(ctx context.Context, id int64) (*Note, error) {
	return scanSQLiteNote(s.db.QueryRowContext(ctx, `SELECT id,title,content,created_at FROM notes WHERE id = ?`, id))
}

func scanSQLiteNote(row *sql.Row) (*Note, error) {
	var n Note
	var created string
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	n.CreatedAt = parseTime(created)
	return &n, nil
}

func (s *SQLiteDB) UpdateNote(ctx context.Context, id int64, title, content string) (*Note, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET title = COALESCE(NULLIF(?, ''), title), content = COALESCE(NULLIF(?, ''), content) WHERE id = ?`, title, content, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetNote(ctx, id)
}

func (s *SQLiteDB) DeleteNote(ctx context.Context, id int64) (*Note, error) {
	return scanSQLiteNote(s.db.QueryRowContext(ctx, `DELETE FROM notes WHERE id = ? RETURNING id,title,content,created_at`, id))
}

func (s *SQLiteDB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteDB) Close() error                   { return s.db.Close() }
