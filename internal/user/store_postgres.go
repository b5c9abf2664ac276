package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/example/authcore/internal/model"
)

const pqUniqueViolation = pq.ErrorCode("23505")

// PostgresStore relies on migrations for its schema.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresStore{db: d}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

// Init only verifies connectivity.
func (p *PostgresStore) Init() error {
	return p.db.Ping()
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	if err := checkNewUser(u); err != nil {
		return nil, err
	}
	out := *u
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users(name,email,password,role,created_at) VALUES($1,$2,$3,$4,now()) RETURNING id, created_at`,
		u.Name, u.Email, u.PasswordHash, string(u.Role),
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return &out, nil
}

const pgUserColumns = `id,name,email,password,role,created_at`

func (p *PostgresStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return scanPostgresUser(p.db.QueryRowContext(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id = $1`, id))
}

func (p *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanPostgresUser(p.db.QueryRowContext(ctx, `SELECT `+pgUserColumns+` FROM users WHERE email = $1`, email))
}

func (p *PostgresStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE users SET password = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d not found", id)
	}
	return nil
}

func (p *PostgresStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+pgUserColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*model.User
	for rows.Next() {
		u, err := scanPostgresUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanPostgresUser(row rowScanner) (*model.User, error) {
	var u model.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *PostgresStore) Close() error                   { return p.db.Close() }
