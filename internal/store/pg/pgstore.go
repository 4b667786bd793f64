package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"menuqr.app/internal/authz"
	"menuqr.app/internal/ids"
)

// ErrConflict reports a uniqueness violation; callers restart the
// allocate-insert cycle.
var ErrConflict = errors.New("pg: conflict")

const uniqueViolation = "23505"

// Store wraps the PostgreSQL connection used by the identity and payment
// collaborators.
type Store struct {
	db *sql.DB
}

var _ authz.RoleResolver = (*Store)(nil)

// Open connects with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle; used by tests with sqlmock.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// ResolveActor loads the actor's active flag, legacy role and role names.
// An unknown actor id maps to authz.ErrActorNotFound.
func (s *Store) ResolveActor(ctx context.Context, actorID string) (authz.Actor, error) {
	row := s.db.QueryRowContext(ctx,
		`select is_active, coalesce(legacy_role, '') from users where id=$1`, actorID)

	actor := authz.Actor{ID: actorID}
	if err := row.Scan(&actor.Active, &actor.LegacyRole); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.Actor{}, authz.ErrActorNotFound
		}
		return authz.Actor{}, fmt.Errorf("resolve actor: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`select r.name
		   from roles r
		   join user_roles ur on ur.role_id = r.id
		  where ur.user_id = $1
		  order by r.name asc`, actorID)
	if err != nil {
		return authz.Actor{}, fmt.Errorf("resolve roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return authz.Actor{}, fmt.Errorf("scan role: %w", err)
		}
		actor.Roles = append(actor.Roles, name)
	}
	if err := rows.Err(); err != nil {
		return authz.Actor{}, fmt.Errorf("resolve roles: %w", err)
	}
	return actor, nil
}

// UserIDByEmail returns the user id for a verified email address.
func (s *Store) UserIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`select id from users where lower(email)=lower($1)`, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", authz.ErrActorNotFound
	}
	if err != nil {
		return "", fmt.Errorf("user by email: %w", err)
	}
	return id, nil
}

// CredentialsByEmail returns the user id and password hash for login checks.
func (s *Store) CredentialsByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx,
		`select id, password_hash from users where lower(email)=lower($1)`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", authz.ErrActorNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("credentials by email: %w", err)
	}
	return id, hash, nil
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return authz.ErrActorNotFound
	}
	return nil
}

// OrderRefExists answers the allocator's existence check against the flat
// payment order reference namespace.
func (s *Store) OrderRefExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from payment_orders where order_ref=$1)`, ref).Scan(&exists); err != nil {
		return false, fmt.Errorf("order ref exists: %w", err)
	}
	return exists, nil
}

// ReserveOrderRef inserts the reference under the unique constraint that
// closes the allocator's check-then-insert race. A duplicate maps to
// ErrConflict so the caller can restart the allocate-insert cycle.
func (s *Store) ReserveOrderRef(ctx context.Context, ref string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into payment_orders(id, order_ref) values($1, $2)`, ids.New(), ref)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: order ref %s", ErrConflict, ref)
		}
		return fmt.Errorf("reserve order ref: %w", err)
	}
	return nil
}
