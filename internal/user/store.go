package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/example/authcore/internal/model"
)

// Store persists users. Lookups return (nil, nil) when nothing matches.
type Store interface {
	Init() error
	CreateUser(ctx context.Context, u *model.User) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	ListUsers(ctx context.Context) ([]*model.User, error)
	Ping(ctx context.Context) error
	Close() error
}

func checkNewUser(u *model.User) error {
	if !u.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, u.Role)
	}
	return nil
}

// MemoryStore keeps users in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[int64]*model.User
	byEmail map[string]*model.User
	seq     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[int64]*model.User{}, byEmail: map[string]*model.User{}, seq: 1}
}

func (m *MemoryStore) Init() error { return nil }

func (m *MemoryStore) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	if err := checkNewUser(u); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return nil, ErrUserExists
	}
	stored := *u
	stored.ID = m.seq
	stored.CreatedAt = time.Now().UTC()
	m.seq++
	m.byID[stored.ID] = &stored
	m.byEmail[stored.Email] = &stored
	out := stored
	return &out, nil
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.byID[id]; ok {
		out := *u
		return &out, nil
	}
	return nil, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.byEmail[email]; ok {
		out := *u
		return &out, nil
	}
	return nil, nil
}

func (m *MemoryStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("user %d not found", id)
	}
	u.PasswordHash = hash
	return nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]*model.User, 0, len(m.byID))
	for _, u := range m.byID {
		out := *u
		users = append(users, &out)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
func (m *MemoryStore) Close() error                   { return nil }

// SQLiteStore is a single-file store. It creates its schema on Init.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: d}
	if err := s.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL DEFAULT '', email TEXT NOT NULL UNIQUE, password TEXT NOT NULL DEFAULT '', role TEXT NOT NULL DEFAULT 'USER', created_at TEXT NOT NULL);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	if err := checkNewUser(u); err != nil {
		return nil, err
	}
	created := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO users(name,email,password,role,created_at) VALUES(?,?,?,?,?)`,
		u.Name, u.Email, u.PasswordHash, string(u.Role), created.Format(time.RFC3339Nano))
	if err != nil {
		var se *sqlite.Error
		if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return nil, ErrUserExists
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *u
	out.ID = id
	out.CreatedAt = created
	return &out, nil
}

const sqliteUserColumns = `id,name,email,password,role,created_at`

func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE email = ?`, email))
}

func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = ? WHERE id = ?`, hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d not found", id)
	}
	return nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteUserColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*model.User
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row rowScanner) (*model.User, error) {
	var u model.User
	var role, created string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.Role = model.Role(role)
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		u.CreatedAt = t
	}
	return &u, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }
