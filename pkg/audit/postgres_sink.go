package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink implements the Sink interface using PostgreSQL.
// The audit_events table carries no UPDATE or DELETE path.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a new PostgreSQL audit sink
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{
		pool: pool,
	}
}

// Record appends an event
func (s *PostgresSink) Record(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var inputData []byte
	if event.InputData != nil {
		var err error
		inputData, err = json.Marshal(event.InputData)
		if err != nil {
			return fmt.Errorf("failed to marshal input data: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			id, operation, success, correlation_id, input_data, error_message, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.pool.Exec(ctx, query,
		event.ID,
		event.Operation,
		event.Success,
		event.CorrelationID,
		inputData,
		event.ErrorMessage,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// FindByCorrelationID returns all events for a correlation id in append order
func (s *PostgresSink) FindByCorrelationID(ctx context.Context, correlationID string) ([]Event, error) {
	query := `
		SELECT id, operation, success, correlation_id, input_data, error_message, created_at
		FROM audit_events
		WHERE correlation_id = $1
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var inputData []byte
		err := rows.Scan(
			&event.ID,
			&event.Operation,
			&event.Success,
			&event.CorrelationID,
			&inputData,
			&event.ErrorMessage,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(inputData) > 0 {
			if err := json.Unmarshal(inputData, &event.InputData); err != nil {
				return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
