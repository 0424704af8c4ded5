package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ctchen222/Battleship/internal/api/models"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User, password string) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	IncrementStats(ctx context.Context, username string, won bool) error
	UpsertAdmin(ctx context.Context, username, password string) error
}

type sqliteUserRepository struct {
	db         *sqlx.DB
	bcryptCost int
}

// NewUserRepository creates a new SQLite-based UserRepository. Passwords are
// hashed with the given bcrypt cost.
func NewUserRepository(db *sqlx.DB, bcryptCost int) UserRepository {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &sqliteUserRepository{db: db, bcryptCost: bcryptCost}
}

// CreateUser hashes the password and inserts a new user into the database.
func (r *sqliteUserRepository) CreateUser(ctx context.Context, user *models.User, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), r.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hashedPassword)
	if user.Role == "" {
		user.Role = models.RolePlayer
	}

	query := `INSERT INTO users (username, password_hash, first_name, last_name, avatar, role)
		VALUES (:username, :password_hash, :first_name, :last_name, :avatar, :role)`
	res, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		user.ID = id
	}
	return nil
}

// GetUserByUsername retrieves a user from the database by their username.
func (r *sqliteUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	query := `SELECT id, username, password_hash, first_name, last_name, avatar, wins, losses, role
		FROM users WHERE username = ?`
	err := r.db.GetContext(ctx, &user, query, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No user found is not an application error
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return &user, nil
}

// IncrementStats adds one win or one loss to the user's record.
func (r *sqliteUserRepository) IncrementStats(ctx context.Context, username string, won bool) error {
	query := `UPDATE users SET losses = losses + 1 WHERE username = ?`
	if won {
		query = `UPDATE users SET wins = wins + 1 WHERE username = ?`
	}
	res, err := r.db.ExecContext(ctx, query, username)
	if err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update stats: no user %q", username)
	}
	return nil
}

// UpsertAdmin creates the account or promotes it to ADMIN with the given password.
func (r *sqliteUserRepository) UpsertAdmin(ctx context.Context, username, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), r.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	query := `INSERT INTO users (username, password_hash, first_name, role) VALUES (?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET password_hash = excluded.password_hash, role = excluded.role`
	if _, err := r.db.ExecContext(ctx, query, username, string(hashedPassword), "Admin", models.RoleAdmin); err != nil {
		return fmt.Errorf("failed to upsert admin: %w", err)
	}
	return nil
}
