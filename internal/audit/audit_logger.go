package audit

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Event types
const (
	EventLoanTransition = "LOAN_TRANSITION"
	EventFine           = "FINE"
	EventPayment        = "PAYMENT"
	EventError          = "ERROR"
)

type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Actor     string            `json:"actor"`
	LoanID    int64             `json:"loan_id,omitempty"`
	FineID    int64             `json:"fine_id,omitempty"`
	Status    string            `json:"status"`
	Details   map[string]string `json:"details,omitempty"`
}

// AuditLogger writes one structured line per lending event
type AuditLogger struct {
	logger *zap.Logger
}

func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{logger: logger.Named("audit")}
}

func (a *AuditLogger) LogTransition(actor string, loanID int64, from, to string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: EventLoanTransition,
		Actor:     actor,
		LoanID:    loanID,
		Status:    to,
		Details:   map[string]string{"from": from},
	})
}

func (a *AuditLogger) LogFine(actor string, fineID, loanID int64, amount decimal.Decimal, status string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: EventFine,
		Actor:     actor,
		FineID:    fineID,
		LoanID:    loanID,
		Status:    status,
		Details:   map[string]string{"amount": amount.StringFixed(2)},
	})
}

func (a *AuditLogger) LogPayment(reference string, fineID int64, status string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: EventPayment,
		FineID:    fineID,
		Status:    status,
		Details:   map[string]string{"reference": reference},
	})
}

func (a *AuditLogger) LogError(actor, operation string, err error) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: EventError,
		Actor:     actor,
		Status:    "FAILED",
		Details:   map[string]string{"operation": operation, "error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	a.logger.Info("audit",
		zap.Time("timestamp", event.Timestamp),
		zap.String("event_type", event.EventType),
		zap.String("actor", event.Actor),
		zap.Int64("loan_id", event.LoanID),
		zap.Int64("fine_id", event.FineID),
		zap.String("status", event.Status),
		zap.Any("details", event.Details),
	)
}
