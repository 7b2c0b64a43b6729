package postgres

import (
	"context"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dealsbasket/marketplace-auth/internal/core/domain"
	"github.com/dealsbasket/marketplace-auth/internal/core/port"
	"github.com/dealsbasket/marketplace-auth/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var userColumns = []string{
	"id",
	"username",
	"email",
	"role",
	"password_hash",
	"is_active",
	"is_verified",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserStore backed by the marketplace users table.
// The user-management subsystem owns the schema; this repository only reads.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByID retrieves a user by numeric identifier.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByIdentifier retrieves a user by username or email. Identifiers
// containing an @ are treated as email addresses.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, repository.ErrNotFound
	}

	column := "username"
	if strings.Contains(identifier, "@") {
		column = "email"
	}

	stmt, args, err := r.builder.
		Select(userColumns...).
		From("users").
		Where(squirrel.Eq{column: identifier}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

func (r *UserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	var role string

	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&role,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.Role = domain.Role(role)
	return &user, nil
}

var _ port.UserStore = (*UserRepository)(nil)
