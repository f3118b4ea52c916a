package audit

import (
	"time"

	"github.com/google/uuid"
)

// Operation identifies the impersonation lifecycle step an audit event records
type Operation string

const (
	OperationStart              Operation = "start"
	OperationStartFailed        Operation = "start_failed"
	OperationEnd                Operation = "end"
	OperationTimeout            Operation = "timeout"
	OperationEmergencyTerminate Operation = "emergency_terminate"
)

// Event is an immutable security record. Events carry only correlation ids,
// never session tokens.
type Event struct {
	ID            uuid.UUID      `json:"id"`
	Operation     Operation      `json:"operation"`
	Success       bool           `json:"success"`
	CorrelationID string         `json:"correlation_id"`
	InputData     map[string]any `json:"input_data,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}
