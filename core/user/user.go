// Package user holds the user model and its Postgres store.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/relabs-tech/blog/core/csql"
	"github.com/relabs-tech/blog/core/logger"
)

var (
	// ErrNotFound is returned when no user matches a lookup
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned when the username or the email is already taken
	ErrDuplicate = errors.New("username or email already exists")
)

// uniqueViolation is the postgres error code for unique_violation
const uniqueViolation = "23505"

// User is a registered user. Password holds the bcrypt hash and is never serialized.
type User struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists users in the "user" relation of the database schema
type Store struct {
	db          *csql.DB
	insertQuery string
	readQuery   string
	countQuery  string
}

const columns = "user_id, username, email, password, is_admin, created_at, updated_at"

// NewStore creates the user relation if it does not exist yet and returns a store for it
func NewStore(db *csql.DB) *Store {
	table := db.Table("user")
	logger.Default().Debugln("create relation:", table)
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + table + `
(user_id uuid NOT NULL PRIMARY KEY,
username varchar NOT NULL UNIQUE,
email varchar NOT NULL UNIQUE,
password varchar NOT NULL,
is_admin boolean NOT NULL DEFAULT false,
created_at timestamp NOT NULL,
updated_at timestamp NOT NULL
);`)
	if err != nil {
		panic(err)
	}

	return &Store{
		db: db,
		insertQuery: `INSERT INTO ` + table + ` (` + columns + `)
VALUES($1,$2,$3,$4,$5,$6,$7);`,
		readQuery:  `SELECT ` + columns + ` FROM ` + table + ` `,
		countQuery: `SELECT count(*), pg_total_relation_size('` + table + `') FROM ` + table + `;`,
	}
}

// Insert stores a new user. UserID, CreatedAt and UpdatedAt are set by the store.
func (s *Store) Insert(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	u.UserID = uuid.New()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.insertQuery,
		u.UserID, u.Username, u.Email, u.Password, u.IsAdmin, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("insert user %s: %w", u.Username, ErrDuplicate)
		}
		return fmt.Errorf("insert user %s: %w", u.Username, err)
	}
	return nil
}

// FindByEmail returns the user with the given email
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, "email", email)
}

// FindByID returns the user with the given id
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.findOne(ctx, "user_id", id)
}

func (s *Store) findOne(ctx context.Context, column string, value interface{}) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, s.readQuery+"WHERE "+column+" = $1;", value).
		Scan(&u.UserID, &u.Username, &u.Email, &u.Password, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read user by %s: %w", column, err)
	}
	return &u, nil
}

// Statistics returns the number of users and the size of the relation in bytes
func (s *Store) Statistics(ctx context.Context) (count int64, size int64, err error) {
	err = s.db.QueryRowContext(ctx, s.countQuery).Scan(&count, &size)
	if err != nil {
		return 0, 0, fmt.Errorf("user statistics: %w", err)
	}
	return count, size, nil
}
