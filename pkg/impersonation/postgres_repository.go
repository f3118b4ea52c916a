package impersonation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSessionRepository implements SessionRepository using PostgreSQL
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionRepository creates a new PostgreSQL session repository
func NewPostgresSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{
		pool: pool,
	}
}

const sessionColumns = `
	id, admin_user_id, target_user_id, session_token, original_session_token,
	reason, state, created_at, expires_at, terminated_at, correlation_id`

func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	err := row.Scan(
		&session.ID,
		&session.AdminUserID,
		&session.TargetUserID,
		&session.SessionToken,
		&session.OriginalSessionToken,
		&session.Reason,
		&session.State,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.TerminatedAt,
		&session.CorrelationID,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Create persists a new session in the active state
func (r *PostgresSessionRepository) Create(ctx context.Context, params CreateSessionParams) (*Session, error) {
	query := `
		INSERT INTO impersonation_sessions (
			admin_user_id, target_user_id, session_token, original_session_token,
			reason, state, created_at, expires_at, correlation_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		) RETURNING ` + sessionColumns

	session, err := scanSession(r.pool.QueryRow(ctx, query,
		params.AdminUserID,
		params.TargetUserID,
		params.SessionToken,
		params.OriginalSessionToken,
		params.Reason,
		StateActive,
		params.CreatedAt,
		params.ExpiresAt,
		params.CorrelationID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create impersonation session: %w", err)
	}
	return session, nil
}

// GetByToken retrieves a session by its bearer token
func (r *PostgresSessionRepository) GetByToken(ctx context.Context, token string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM impersonation_sessions WHERE session_token = $1`

	session, err := scanSession(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get impersonation session: %w", err)
	}
	return session, nil
}

// CountActiveByAdmin counts an admin's active, non-expired sessions
func (r *PostgresSessionRepository) CountActiveByAdmin(ctx context.Context, adminUserID uuid.UUID, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM impersonation_sessions
		WHERE admin_user_id = $1 AND state = $2 AND expires_at > $3
	`

	var count int
	err := r.pool.QueryRow(ctx, query, adminUserID, StateActive, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}

// FindAllActive lists every active session regardless of owner
func (r *PostgresSessionRepository) FindAllActive(ctx context.Context) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM impersonation_sessions WHERE state = $1 ORDER BY created_at`
	return r.querySessions(ctx, query, StateActive)
}

// FindExpiredActive lists sessions still flagged active whose expiry has passed
func (r *PostgresSessionRepository) FindExpiredActive(ctx context.Context, now time.Time) ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM impersonation_sessions
		WHERE state = $1 AND expires_at <= $2
		ORDER BY created_at
	`
	return r.querySessions(ctx, query, StateActive, now)
}

func (r *PostgresSessionRepository) querySessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query impersonation sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan impersonation session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// Terminate transitions a session to a terminal state. The state guard in the
// WHERE clause makes concurrent terminations race-safe: only one writer
// observes a row update, later writers see false.
func (r *PostgresSessionRepository) Terminate(ctx context.Context, id uuid.UUID, state SessionState, terminatedAt time.Time) (bool, error) {
	query := `
		UPDATE impersonation_sessions
		SET state = $2, terminated_at = $3
		WHERE id = $1 AND state = $4
	`

	tag, err := r.pool.Exec(ctx, query, id, state, terminatedAt, StateActive)
	if err != nil {
		return false, fmt.Errorf("failed to terminate impersonation session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
