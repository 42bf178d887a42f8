package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/evikzub/CVTransformer/internal/domain"
	"github.com/evikzub/CVTransformer/pkg/database"
	apperrors "github.com/evikzub/CVTransformer/pkg/errors"
)

// DB is the subset of a pgx pool the repository needs. *pgxpool.Pool and
// pgxmock pools both satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const userColumns = `id, remote_id, username, profile, role, last_login, conversion_count, created_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	pool DB
	now  func() time.Time
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(pool DB) *UserRepository {
	return &UserRepository{pool: pool, now: time.Now}
}

// Create inserts a new user. The table lock serializes concurrent first
// logins so only one of them can observe an empty table.
func (r *UserRepository) Create(ctx context.Context, nu domain.NewUser) (u *domain.User, err error) {
	const (
		lockQuery   = `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`
		countQuery  = `SELECT COUNT(*) FROM users`
		insertQuery = `
		INSERT INTO users (id, remote_id, username, profile, role, conversion_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	)

	ctx, end := database.TraceQuery(ctx, "CreateUser", insertQuery)
	defer func() { end(err) }()

	profile, err := encodeProfile(nu.Profile)
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, lockQuery); err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("lock users: %w", err))
	}

	var count int64
	if err = tx.QueryRow(ctx, countQuery).Scan(&count); err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("count users: %w", err))
	}

	u = &domain.User{
		ID:        uuid.New().String(),
		RemoteID:  nu.RemoteID,
		Username:  nu.Username,
		Profile:   nu.Profile,
		Role:      domain.RoleUser,
		CreatedAt: r.now().UTC().Truncate(time.Microsecond),
	}
	if count == 0 {
		u.Role = domain.RoleAdmin
	}

	_, err = tx.Exec(ctx, insertQuery,
		u.ID,
		u.RemoteID,
		u.Username,
		profile,
		u.Role,
		u.ConversionCount,
		u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.AlreadyExists("user", "remote_id", strconv.FormatInt(nu.RemoteID, 10))
		}
		return nil, apperrors.Persistence(fmt.Errorf("insert user: %w", err))
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("commit transaction: %w", err))
	}

	return u, nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFound("user", id)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(ctx, "GetUserByID", query, id)
}

// GetByRemoteID retrieves a user by their remote tracker identity.
func (r *UserRepository) GetByRemoteID(ctx context.Context, remoteID int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE remote_id = $1`
	return r.scanUser(ctx, "GetUserByRemoteID", query, remoteID)
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanUser(ctx, "GetUserByUsername", query, username)
}

// TouchLastLogin sets last_login to the current time.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id string) error {
	query := `UPDATE users SET last_login = $1 WHERE id = $2`
	return r.updateOne(ctx, "TouchLastLogin", id, query, r.now().UTC(), id)
}

// IncrementConversionCount adds one to conversion_count.
func (r *UserRepository) IncrementConversionCount(ctx context.Context, id string) error {
	query := `UPDATE users SET conversion_count = conversion_count + 1 WHERE id = $1`
	return r.updateOne(ctx, "IncrementConversionCount", id, query, id)
}

// SetRole updates the role of a user.
func (r *UserRepository) SetRole(ctx context.Context, id, role string) error {
	if !domain.IsValidRole(role) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid role %q, must be one of: %s", role, strings.Join(domain.ValidRoles(), ", ")))
	}
	query := `UPDATE users SET role = $1 WHERE id = $2`
	return r.updateOne(ctx, "SetUserRole", id, query, role, id)
}

// ListAll returns all users ordered by creation time, newest first.
func (r *UserRepository) ListAll(ctx context.Context) (users []*domain.User, err error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, id`

	ctx, end := database.TraceQuery(ctx, "ListUsers", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("list users: %w", err))
	}
	defer rows.Close()

	users = make([]*domain.User, 0)
	for rows.Next() {
		u, scanErr := scanRow(rows)
		if scanErr != nil {
			err = apperrors.Persistence(fmt.Errorf("scan user row: %w", scanErr))
			return nil, err
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("iterate user rows: %w", err))
	}

	return users, nil
}

// Delete removes a user from the database by their ID.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = $1`
	return r.updateOne(ctx, "DeleteUser", id, query, id)
}

// updateOne runs a statement that must affect exactly the row with the given id.
func (r *UserRepository) updateOne(ctx context.Context, op, id, query string, args ...any) (err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return apperrors.NotFound("user", id)
	}

	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("%s: %w", op, err))
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}

	return nil
}

// scanUser is a helper that executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, op, query string, args ...any) (u *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	u, err = scanRow(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", fmt.Sprint(args[0]))
		}
		return nil, apperrors.Persistence(fmt.Errorf("scan user: %w", err))
	}

	return u, nil
}

func scanRow(row pgx.Row) (*domain.User, error) {
	var (
		u       domain.User
		profile []byte
	)
	err := row.Scan(
		&u.ID,
		&u.RemoteID,
		&u.Username,
		&profile,
		&u.Role,
		&u.LastLogin,
		&u.ConversionCount,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &u.Profile); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
	}

	return &u, nil
}

func encodeProfile(profile map[string]string) ([]byte, error) {
	if profile == nil {
		profile = map[string]string{}
	}
	b, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
