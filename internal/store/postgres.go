package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d}
	// rely on migrations to create tables; just verify connectivity
	if err := d.Ping(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func isPQUnique(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func (p *PostgresDB) CreateUser(ctx context.Context, u *User) error {
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users(username,email,password,role,created_at) VALUES($1,$2,$3,$4,now()) RETURNING id, created_at`,
		u.Username, nullable(u.Email), u.Password, u.Role).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isPQUnique(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (p *PostgresDB) getUser(ctx context.Context, query string, arg interface{}) (*User, error) {
	var u User
	var email sql.NullString
	if err := p.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &email, &u.Password, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Email = email.String
	return &u, nil
}

func (p *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return p.getUser(ctx, `SELECT id,username,email,password,role,created_at FROM users WHERE username = $1`, username)
}

func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return p.getUser(ctx, `SELECT id,username,email,password,role,created_at FROM users WHERE email = $1`, email)
}

func (p *PostgresDB) CreateNote(ctx context.Context, title, content string) (*Note, error) {
	n := Note{Title: title, Content: content}
	err := p.db.QueryRowContext(ctx, `INSERT INTO notes(title,content) VALUES($1,$2) RETURNING id, created_at`, title, content).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (p *PostgresDB) ListNotes(ctx context.Context) ([]*Note, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id,title,content,created_at FROM notes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	notes := []*Note{}
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}

func (p *PostgresDB) scanNote(row *sql.Row) (*Note, error) {
	var n Note
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &n.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (p *PostgresDB) GetNote(ctx context.Context, id int64) (*Note, error) {
	return p.scanNote(p.db.QueryRowContext(ctx, `SELECT id,title,content,created_at FROM notes WHERE id = $1`, id))
}

func (p *PostgresDB) UpdateNote(ctx context.Context, id int64, title, content string) (*Note, error) {
	return p.scanNote(p.db.QueryRowContext(ctx,
		`UPDATE notes SET title = COALESCE(NULLIF($1, ''), title), content = COALESCE(NULLIF($2, ''), content) WHERE id = $3 RETURNING id,title,content,created_at`,
		title, content, id))
}

func (p *PostgresDB) DeleteNote(ctx context.Context, id int64) (*Note, error) {
	return p.scanNote(p.db.QueryRowContext(ctx, `DELETE FROM notes WHERE id = $1 RETURNING id,title,content,created_at`, id))
}

func (p *PostgresDB) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *PostgresDB) Close() error                   { return p.db.Close() }
