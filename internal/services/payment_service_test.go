package services

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/libraryhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPaymentService(t *testing.T) (*PaymentService, sqlmock.Sqlmock, redismock.ClientMock) {
	t.Helper()
	db, dbMock := newMockDB(t)
	client, redisMock := redismock.NewClientMock()
	auth := allowAll()

	fines := NewFineService(db, auth, testConfig(), nil, nil)
	fines.now = at(22, 10)
	svc := NewPaymentService(db, client, auth, fines, testConfig(), nil, nil)
	svc.now = at(22, 10)
	svc.reference = func() string { return "0f8fad5bd9cb469fa16570867728950e" }
	return svc, dbMock, redisMock
}

func TestPaymentService_InitiatePayment(t *testing.T) {
	t.Run("stores the reference and renders qr and pacs.008", func(t *testing.T) {
		svc, dbMock, redisMock := newTestPaymentService(t)

		dbMock.ExpectQuery(q("FROM fines WHERE id = $1")).
			WithArgs(int64(11)).
			WillReturnRows(fineRow(11, int64(5), "30.00", 6, false, nil))
		dbMock.ExpectQuery(q("SELECT first_name, last_name FROM students WHERE id = $1")).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"first_name", "last_name"}).AddRow("John", "Doe"))
		redisMock.ExpectSet("payment:0f8fad5bd9cb469fa16570867728950e", int64(11), 30*time.Minute).SetVal("OK")

		instruction, err := svc.InitiatePayment(context.Background(), testStudent, 11)
		require.NoError(t, err)
		assert.Equal(t, "0f8fad5bd9cb469fa16570867728950e", instruction.Reference)
		assert.True(t, dec("30").Equal(instruction.Amount))
		assert.Equal(t, "BDT", instruction.Currency)
		assert.Equal(t, day(22).Add(10*time.Hour+30*time.Minute), instruction.ExpiresAt)

		png, err := base64.StdEncoding.DecodeString(instruction.QRCode)
		require.NoError(t, err)
		assert.Equal(t, "\x89PNG", string(png[:4]))

		assert.Contains(t, instruction.InstructionXML, "<?xml")
		assert.Contains(t, instruction.InstructionXML, "0f8fad5bd9cb469fa16570867728950e")
		assert.Contains(t, instruction.InstructionXML, "John Doe")
		assert.Contains(t, instruction.InstructionXML, "SLEV")

		assert.NoError(t, dbMock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("someone else's fine", func(t *testing.T) {
		svc, dbMock, _ := newTestPaymentService(t)

		dbMock.ExpectQuery(q("FROM fines WHERE id = $1")).
			WillReturnRows(fineRow(11, int64(5), "30.00", 6, false, nil))

		_, err := svc.InitiatePayment(context.Background(), models.StudentIdentity(77), 11)
		assert.ErrorIs(t, err, ErrFineNotOwned)
	})

	t.Run("paid fine", func(t *testing.T) {
		svc, dbMock, _ := newTestPaymentService(t)

		dbMock.ExpectQuery(q("FROM fines WHERE id = $1")).
			WillReturnRows(fineRow(11, int64(5), "30.00", 6, true, day(21)))

		_, err := svc.InitiatePayment(context.Background(), testStudent, 11)
		assert.ErrorIs(t, err, ErrFineAlreadyPaid)
	})

	t.Run("no redis", func(t *testing.T) {
		svc, _, _ := newTestPaymentService(t)
		svc.redis = nil

		_, err := svc.InitiatePayment(context.Background(), testStudent, 11)
		assert.ErrorIs(t, err, ErrPaymentUnavailable)
	})
}

func TestPaymentService_OnPaymentCallback(t *testing.T) {
	ref := "0f8fad5bd9cb469fa16570867728950e"
	paidAt := day(22).Add(10 * time.Hour)

	t.Run("success marks the fine paid once", func(t *testing.T) {
		svc, dbMock, redisMock := newTestPaymentService(t)

		redisMock.ExpectGet("payment:" + ref).SetVal("11")
		dbMock.ExpectBegin()
		dbMock.ExpectQuery(q("FROM fines WHERE id = $1 FOR UPDATE")).
			WillReturnRows(fineRow(11, int64(5), "30.00", 6, false, nil))
		dbMock.ExpectQuery(q("UPDATE fines SET is_paid = true")).
			WithArgs(paidAt, "online", "GW-991", int64(11)).
			WillReturnRows(fineRow(11, int64(5), "30.00", 6, true, paidAt))
		dbMock.ExpectCommit()

		res, err := svc.OnPaymentCallback(context.Background(), CallbackRequest{Reference: ref, Status: "acsc", ExternalTxID: "GW-991"})
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.True(t, res.Fine.IsPaid)

		// redelivery of the same report
		redisMock.ExpectGet("payment:" + ref).SetVal("11")
		dbMock.ExpectBegin()
		dbMock.ExpectQuery(q("FROM fines WHERE id = $1 FOR UPDATE")).
			WillReturnRows(fineRow(11, int64(5), "30.00", 6, true, paidAt))
		dbMock.ExpectRollback()

		res, err = svc.OnPaymentCallback(context.Background(), CallbackRequest{Reference: ref, Status: "ACSC", ExternalTxID: "GW-991"})
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, paidAt, *res.Fine.PaymentDate)

		assert.NoError(t, dbMock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("rejected payment changes nothing", func(t *testing.T) {
		svc, dbMock, redisMock := newTestPaymentService(t)

		redisMock.ExpectGet("payment:" + ref).SetVal("11")

		res, err := svc.OnPaymentCallback(context.Background(), CallbackRequest{Reference: ref, Status: "RJCT"})
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Nil(t, res.Fine)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("unknown reference", func(t *testing.T) {
		svc, _, redisMock := newTestPaymentService(t)

		redisMock.ExpectGet("payment:missing").RedisNil()

		_, err := svc.OnPaymentCallback(context.Background(), CallbackRequest{Reference: "missing", Status: "ACSC"})
		assert.ErrorIs(t, err, ErrPaymentNotFound)
		assert.Equal(t, KindNotFound, KindOf(err))
	})
}
