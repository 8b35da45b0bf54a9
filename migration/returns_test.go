package migration_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/hotel_migration/migration"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigratePaymentReturnsThroughMoveLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bank := models.Journal{PropertyId: testPropertyId, Name: "Banco", Code: "BNK1", Type: models.JournalTypeBank}
	testutil.MustCreate(t, f.db, &bank)
	f.reader.
		add("account.journal", map[string]any{"id": 5, "name": "Banco", "code": "BNK1", "type": "bank", "active": true}).
		add("account.payment", map[string]any{
			"id": 301, "payment_type": "inbound", "partner_type": "customer", "amount": 80,
			"journal_id": m2o(5, "Banco"), "payment_date": "2024-01-08", "state": "posted",
		}).
		add("account.move.line", map[string]any{"id": 401, "payment_id": m2o(301, "CUST.IN/0001")}).
		add("payment.return", map[string]any{
			"id": 450, "name": "RET/001", "journal_id": m2o(5, "Banco"), "date": "2024-01-20",
			"state": "done", "line_ids": []int{451},
		}).
		add("payment.return.line", map[string]any{
			"id": 451, "return_id": m2o(450, "RET/001"), "amount": 80, "reference": "Chargeback",
			"move_line_ids": []int{401},
		}).
		add("payment.return", map[string]any{
			"id": 460, "name": "RET/002", "journal_id": m2o(5, "Banco"), "date": "2024-01-21",
			"state": "draft", "line_ids": []int{461},
		}).
		add("payment.return.line", map[string]any{
			"id": 461, "return_id": m2o(460, "RET/002"), "amount": 80, "move_line_ids": []int{401},
		})

	e := f.engine()
	_, err := e.ImportJournals(ctx)
	require.NoError(t, err)
	p, err := e.MigratePayments(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, p.Migrated)

	var paid models.Payment
	require.NoError(t, f.db.Where("remote_id = ? AND remote_leg = ?", 301, models.LegSource).Take(&paid).Error)
	assert.Equal(t, models.PaymentTypeInbound, paid.PaymentType)

	p, err = e.MigratePaymentReturns(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReported, p.Phase)
	assert.Equal(t, 1, p.Migrated, "draft returns stay behind")
	assert.Zero(t, p.Failed)

	var ret models.Payment
	require.NoError(t, f.db.Where("remote_id = ? AND remote_leg = ?", 450, models.LegReturn).Take(&ret).Error)
	assert.Equal(t, models.PaymentTypeOutbound, ret.PaymentType)
	assert.Equal(t, bank.ID, ret.JournalId)
	assert.Equal(t, "Chargeback", ret.Ref)
	requireDecimal(t, "80", ret.Amount, "return amount")
	require.NotNil(t, ret.ReturnedPaymentId)
	assert.Equal(t, paid.ID, *ret.ReturnedPaymentId)

	// a rerun finds nothing new
	p, err = e.MigratePaymentReturns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Migrated)
	assert.Zero(t, p.Skipped)
	assert.Zero(t, p.Failed)
	var n int64
	require.NoError(t, f.db.Model(&models.Payment{}).Where("remote_leg = ?", models.LegReturn).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestPaymentsOlderThanRetentionAreSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cashJournals(t, f)
	f.reader.
		add("account.payment", map[string]any{
			"id": 210, "payment_type": "inbound", "amount": 40,
			"journal_id": m2o(7, "Caja"), "payment_date": "2024-01-05", "state": "posted",
		}).
		add("account.payment", map[string]any{
			"id": 211, "payment_type": "inbound", "amount": 15,
			"journal_id": m2o(7, "Caja"), "payment_date": "2024-01-25", "state": "posted",
		})

	tunables := fallbackTunables(1)
	tunables.RetentionDays = 10 // cutoff 2024-01-22 against the fixture clock
	e := f.engine(migration.WithTunables(tunables))
	_, err := e.ImportJournals(ctx)
	require.NoError(t, err)

	p, err := e.MigratePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Migrated)
	assert.Equal(t, 1, p.Skipped)

	var lines []models.StatementLine
	require.NoError(t, f.db.Find(&lines).Error)
	require.Len(t, lines, 1)
	assert.Equal(t, 211, *lines[0].RemoteId)

	var log models.MigrationLog
	require.NoError(t, f.db.Where("run_id = ? AND remote_id = ?", f.run.ID, 210).Take(&log).Error)
	assert.Equal(t, models.LogCodeSkipped, log.Code)
	assert.Contains(t, log.Message, "retention")
}
