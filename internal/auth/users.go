package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// UserRepository stores accounts. Emails are unique and stored normalized.
type UserRepository interface {
	Create(ctx context.Context, u models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	Update(ctx context.Context, u models.User) error
}

// MemoryUsers is a process-local UserRepository.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[uuid.UUID]models.User
	email map[string]uuid.UUID
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		users: make(map[uuid.UUID]models.User),
		email: make(map[string]uuid.UUID),
	}
}

func (r *MemoryUsers) Create(_ context.Context, u models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.email[u.Email]; ok {
		return ErrEmailTaken
	}
	r.users[u.ID] = u
	r.email[u.Email] = u.ID
	return nil
}

func (r *MemoryUsers) GetByID(_ context.Context, id uuid.UUID) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryUsers) GetByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.email[email]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return r.users[id], nil
}

func (r *MemoryUsers) Update(_ context.Context, u models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.users[u.ID]
	if !ok {
		return ErrUserNotFound
	}
	if old.Email != u.Email {
		if _, taken := r.email[u.Email]; taken {
			return ErrEmailTaken
		}
		delete(r.email, old.Email)
		r.email[u.Email] = u.ID
	}
	r.users[u.ID] = u
	return nil
}

// Dialect selects SQL placeholder and DDL flavour.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// SQLUsers stores accounts in PostgreSQL or SQLite.
type SQLUsers struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLUsers(db *sql.DB, dialect Dialect) *SQLUsers {
	return &SQLUsers{db: db, dialect: dialect}
}

// Migrate creates the users table if it does not exist.
func (r *SQLUsers) Migrate(ctx context.Context) error {
	ts := "TIMESTAMP"
	if r.dialect == SQLite {
		ts = "DATETIME"
	}
	ddl := `CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		password_hash VARCHAR(255) NOT NULL,
		theme VARCHAR(16) NOT NULL DEFAULT 'light',
		notifications BOOLEAN NOT NULL DEFAULT TRUE,
		auto_save BOOLEAN NOT NULL DEFAULT TRUE,
		created_at ` + ts + ` NOT NULL,
		updated_at ` + ts + ` NOT NULL,
		last_login ` + ts + ` NOT NULL
	)`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

// rebind rewrites $n placeholders for SQLite.
func (r *SQLUsers) rebind(q string) string {
	if r.dialect != SQLite {
		return q
	}
	var b strings.Builder
	for i := 0; i < len(q); i++ {
		if q[i] == '$' {
			j := i + 1
			for j < len(q) && q[j] >= '0' && q[j] <= '9' {
				j++
			}
			if j > i+1 {
				n, _ := strconv.Atoi(q[i+1 : j])
				b.WriteString("?" + strconv.Itoa(n))
				i = j - 1
				continue
			}
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

const userColumns = `id, email, name, avatar_url, password_hash, theme, notifications, auto_save, created_at, updated_at, last_login`

func (r *SQLUsers) Create(ctx context.Context, u models.User) error {
	q := r.rebind(`INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	_, err := r.db.ExecContext(ctx, q,
		u.ID.String(), u.Email, u.Name, u.AvatarURL, u.PasswordHash,
		u.Preferences.Theme, u.Preferences.Notifications, u.Preferences.AutoSave,
		u.CreatedAt, u.UpdatedAt, u.LastLogin)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *SQLUsers) GetByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
}

func (r *SQLUsers) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *SQLUsers) getOne(ctx context.Context, q string, arg any) (models.User, error) {
	var (
		u  models.User
		id string
	)
	err := r.db.QueryRowContext(ctx, r.rebind(q), arg).Scan(
		&id, &u.Email, &u.Name, &u.AvatarURL, &u.PasswordHash,
		&u.Preferences.Theme, &u.Preferences.Notifications, &u.Preferences.AutoSave,
		&u.CreatedAt, &u.UpdatedAt, &u.LastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("query user: %w", err)
	}
	if u.ID, err = uuid.Parse(id); err != nil {
		return models.User{}, fmt.Errorf("parse user id: %w", err)
	}
	return u, nil
}

func (r *SQLUsers) Update(ctx context.Context, u models.User) error {
	q := r.rebind(`UPDATE users SET email = $2, name = $3, avatar_url = $4, password_hash = $5,
		theme = $6, notifications = $7, auto_save = $8, updated_at = $9, last_login = $10
		WHERE id = $1`)
	res, err := r.db.ExecContext(ctx, q,
		u.ID.String(), u.Email, u.Name, u.AvatarURL, u.PasswordHash,
		u.Preferences.Theme, u.Preferences.Notifications, u.Preferences.AutoSave,
		u.UpdatedAt, u.LastLogin)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
