package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"image/png"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/libraryhub/backend/internal/audit"
	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/models"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// PaymentService hands out gateway payment references for fines and settles
// them when the gateway calls back.
type PaymentService struct {
	db        *sql.DB
	redis     *redis.Client
	auth      Authorizer
	fines     *FineService
	validator *ValidationHelper
	logger    *zap.Logger
	audit     *audit.AuditLogger
	cfg       *config.LendingConfig
	now       func() time.Time
	reference func() string
}

// PaymentInstruction is what a student needs to pay a fine online
type PaymentInstruction struct {
	Reference      string          `json:"reference"`
	FineID         int64           `json:"fine_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	QRCode         string          `json:"qr_code"`
	InstructionXML string          `json:"instruction_xml"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// CallbackRequest is the gateway's report for a reference
type CallbackRequest struct {
	Reference    string `json:"reference" validate:"required,max=64"`
	Status       string `json:"status" validate:"required,max=20"`
	ExternalTxID string `json:"external_tx_id" validate:"max=100"`
}

// CallbackResult tells the gateway whether the report changed anything
type CallbackResult struct {
	Reference string       `json:"reference"`
	FineID    int64        `json:"fine_id"`
	Applied   bool         `json:"applied"`
	Fine      *models.Fine `json:"fine,omitempty"`
}

var successStatuses = map[string]bool{
	"ACSC":    true,
	"ACCP":    true,
	"ACSP":    true,
	"SUCCESS": true,
}

func NewPaymentService(db *sql.DB, redisClient *redis.Client, auth Authorizer, fines *FineService, cfg *config.LendingConfig, auditLogger *audit.AuditLogger, logger *zap.Logger) *PaymentService {
	if cfg == nil {
		cfg = config.DefaultLendingConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger(logger)
	}
	return &PaymentService{
		db:        db,
		redis:     redisClient,
		auth:      auth,
		fines:     fines,
		validator: NewValidationHelper(),
		logger:    logger.Named("payments"),
		audit:     auditLogger,
		cfg:       cfg,
		now:       time.Now,
		reference: newPaymentReference,
	}
}

// newPaymentReference is a dashless uuid so it fits ISO 20022 Max35Text
func newPaymentReference() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func paymentKey(reference string) string {
	return fmt.Sprintf("payment:%s", reference)
}

// InitiatePayment issues a reference for one of the student's unpaid fines
func (s *PaymentService) InitiatePayment(ctx context.Context, actor models.Identity, fineID int64) (*PaymentInstruction, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityStudent); err != nil {
		return nil, err
	}
	if s.redis == nil {
		return nil, ErrPaymentUnavailable
	}

	fine, err := s.fines.getFine(ctx, fineID)
	if err != nil {
		return nil, err
	}
	if fine.StudentID != actor.ID {
		return nil, ErrFineNotOwned
	}
	if fine.IsPaid {
		return nil, ErrFineAlreadyPaid
	}

	var first, last string
	err = s.db.QueryRowContext(ctx, "SELECT first_name, last_name FROM students WHERE id = $1", actor.ID).Scan(&first, &last)
	if err != nil {
		return nil, notFound(err, ErrStudentNotFound, "load student")
	}

	reference := s.reference()
	ttl := s.cfg.PaymentReferenceTTL
	if err := s.redis.Set(ctx, paymentKey(reference), fine.ID, ttl).Err(); err != nil {
		return nil, fmt.Errorf("store payment reference: %w", err)
	}

	qrImage, err := encodeQR(reference)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}

	doc := s.creditTransfer(reference, fine, first+" "+last)
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal XML: %w", err)
	}

	s.audit.LogPayment(reference, fine.ID, "INITIATED")
	return &PaymentInstruction{
		Reference:      reference,
		FineID:         fine.ID,
		Amount:         fine.Amount,
		Currency:       s.cfg.Currency,
		QRCode:         qrImage,
		InstructionXML: xml.Header + string(xmlData),
		ExpiresAt:      s.now().Add(ttl),
	}, nil
}

func encodeQR(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// creditTransfer builds the pacs.008 instruction moving the fine amount from
// the student to the library
func (s *PaymentService) creditTransfer(reference string, fine *models.Fine, debtorName string) *pacs_v08.FIToFICustomerCreditTransferV08 {
	created := s.now()
	settlementDate := created
	amount := pacs_v08.ActiveCurrencyAndAmount{
		Ccy:   common.ActiveCurrencyCode(s.cfg.Currency),
		Value: fine.Amount.Round(2).InexactFloat64(),
	}

	return &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:             common.Max35Text(reference),
			CreDtTm:           common.ISODateTime(created),
			NbOfTxs:           "1",
			TtlIntrBkSttlmAmt: &amount,
			IntrBkSttlmDt:     (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(max35(fine.InvoiceNumber))}[0],
					EndToEndId: common.Max35Text(reference),
					TxId:       &[]common.Max35Text{common.Max35Text(reference)}[0],
				},
				IntrBkSttlmAmt: amount,
				IntrBkSttlmDt:  (*common.ISODate)(&settlementDate),
				ChrgBr:         "SLEV",
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(debtorName)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(s.cfg.PaymentCreditorBIC)}[0],
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(s.cfg.PaymentCreditorName)}[0],
				},
			},
		},
	}
}

func max35(v string) string {
	if len(v) > 35 {
		return v[len(v)-35:]
	}
	return v
}

// OnPaymentCallback applies a gateway report. Success marks the fine paid
// online; a repeated success finds it paid and changes nothing. Any other
// status is logged and ignored.
func (s *PaymentService) OnPaymentCallback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	if err := s.validator.validateInput(&req); err != nil {
		return nil, err
	}
	if s.redis == nil {
		return nil, ErrPaymentUnavailable
	}

	raw, err := s.redis.Get(ctx, paymentKey(req.Reference)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load payment reference: %w", err)
	}
	fineID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt payment reference %s: %w", req.Reference, err)
	}

	status := strings.ToUpper(strings.TrimSpace(req.Status))
	result := &CallbackResult{Reference: req.Reference, FineID: fineID}
	if !successStatuses[status] {
		s.logger.Info("payment not successful", zap.String("reference", req.Reference), zap.String("status", status))
		s.audit.LogPayment(req.Reference, fineID, status)
		return result, nil
	}

	fine, err := s.fines.markPaid(ctx, "gateway", fineID, models.PaymentMethodOnline, req.ExternalTxID)
	switch {
	case errors.Is(err, ErrFineAlreadyPaid):
		s.logger.Info("duplicate payment callback", zap.String("reference", req.Reference), zap.Int64("fine_id", fineID))
	case err != nil:
		s.audit.LogError("gateway", "payment_callback", err)
		return nil, err
	default:
		result.Applied = true
	}

	result.Fine = fine
	s.audit.LogPayment(req.Reference, fineID, status)
	return result, nil
}
