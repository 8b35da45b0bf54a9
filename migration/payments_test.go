package migration_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/reconcile"
	"github.com/mmdatafocus/hotel_migration/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cashJournals(t *testing.T, f *fixture) (models.Journal, models.Journal) {
	t.Helper()
	front := models.Journal{PropertyId: testPropertyId, Name: "Caja", Code: "CSH1", Type: models.JournalTypeCash}
	desk := models.Journal{PropertyId: testPropertyId, Name: "Caja Recepcion", Code: "CSH2", Type: models.JournalTypeCash}
	testutil.MustCreate(t, f.db, &front, &desk)
	f.reader.
		add("account.journal", map[string]any{"id": 7, "name": "Caja", "code": "CSH1", "type": "cash", "active": true}).
		add("account.journal", map[string]any{"id": 8, "name": "Caja Recepcion", "code": "CSH2", "type": "cash", "active": true})
	return front, desk
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "%s: got %s, want %s", msg, got, want)
}

func TestTransferBetweenCashJournalsWritesBothLegs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	front, desk := cashJournals(t, f)
	f.reader.
		add("account.payment", map[string]any{
			"id": 201, "payment_type": "inbound", "partner_type": "customer", "amount": 50,
			"journal_id": m2o(7, "Caja"), "payment_date": "2024-01-10", "state": "posted", "communication": "Deposit",
		}).
		add("account.payment", map[string]any{
			"id": 200, "payment_type": "transfer", "amount": 30,
			"journal_id": m2o(7, "Caja"), "destination_journal_id": m2o(8, "Caja Recepcion"),
			"payment_date": "2024-01-12", "state": "posted",
		}).
		add("account.payment", map[string]any{
			"id": 202, "payment_type": "inbound", "amount": 99,
			"journal_id": m2o(7, "Caja"), "payment_date": "2024-01-12", "state": "draft",
		}).
		add("account.payment", map[string]any{
			"id": 203, "payment_type": "inbound", "amount": 99,
			"journal_id": m2o(7, "Caja"), "payment_date": "2024-03-01", "state": "posted",
		})

	e := f.engine()
	_, err := e.ImportJournals(ctx)
	require.NoError(t, err)

	p, err := e.MigratePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReported, p.Phase)
	assert.Equal(t, 2, p.Migrated, "the transfer counts once")
	assert.Zero(t, p.Failed)

	var jobs []models.MigrationJob
	require.NoError(t, f.db.Where("run_id = ? AND kind = ? AND chunk_index >= 0", f.run.ID, models.KindPayment).Order("chunk_index").Find(&jobs).Error)
	require.Len(t, jobs, 2, "one task per journal")
	require.NotNil(t, jobs[0].JournalId)
	assert.Equal(t, front.ID, *jobs[0].JournalId)
	assert.Equal(t, desk.ID, *jobs[1].JournalId)

	var lines []models.StatementLine
	require.NoError(t, f.db.Where("remote_id = ?", 200).Order("journal_id").Find(&lines).Error)
	require.Len(t, lines, 2)
	assert.Equal(t, models.LegSource, lines[0].RemoteLeg)
	assert.Equal(t, front.ID, lines[0].JournalId)
	requireDecimal(t, "-30", lines[0].Amount, "source leg")
	assert.True(t, lines[0].IsInternalTransfer)
	require.NotNil(t, lines[0].PartnerId)
	assert.Equal(t, *f.prop.CompanyPartnerId, *lines[0].PartnerId)
	assert.Equal(t, models.LegDestination, lines[1].RemoteLeg)
	assert.Equal(t, desk.ID, lines[1].JournalId)
	requireDecimal(t, "30", lines[1].Amount, "destination leg")

	var frontChain []models.CashStatement
	require.NoError(t, f.db.Where("journal_id = ?", front.ID).Order("date, sequence").Find(&frontChain).Error)
	require.Len(t, frontChain, 2)
	requireDecimal(t, "50", frontChain[0].BalanceEndReal, "first day")
	requireDecimal(t, "50", frontChain[1].BalanceStart, "second day start")
	requireDecimal(t, "20", frontChain[1].BalanceEndReal, "second day")
	for _, st := range frontChain {
		assert.Equal(t, models.StatementStatePosted, st.State, st.Name)
	}

	var deskChain []models.CashStatement
	require.NoError(t, f.db.Where("journal_id = ?", desk.ID).Find(&deskChain).Error)
	require.Len(t, deskChain, 1)
	requireDecimal(t, "30", deskChain[0].BalanceEndReal, "desk")

	var n int64
	require.NoError(t, f.db.Model(&models.StatementLine{}).Where("remote_id IN ?", []int{202, 203}).Count(&n).Error)
	assert.Zero(t, n, "drafts and payments outside the window stay behind")

	// running again finds every leg in place
	p, err = e.MigratePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Migrated)
	require.NoError(t, f.db.Model(&models.StatementLine{}).Count(&n).Error)
	assert.EqualValues(t, 3, n)
}

func TestPaymentOnUnmappedJournalFailsDuringPreparation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.reader.add("account.payment", map[string]any{
		"id": 300, "payment_type": "inbound", "amount": 10,
		"journal_id": m2o(70, "Banco"), "payment_date": "2024-01-05", "state": "posted",
	})

	p, err := f.engine().MigratePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Failed)
	assert.Zero(t, p.Migrated)

	var log models.MigrationLog
	require.NoError(t, f.db.Where("run_id = ? AND remote_id = ?", f.run.ID, 300).Take(&log).Error)
	assert.Equal(t, models.LogCodeMissingDependency, log.Code)
}

func TestLatePaymentBehindPostedStatementFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	front, _ := cashJournals(t, f)
	f.reader.add("account.payment", map[string]any{
		"id": 220, "payment_type": "inbound", "amount": 500,
		"journal_id": m2o(7, "Caja"), "payment_date": "2024-01-20", "state": "posted",
	})
	e := f.engine()
	_, err := e.ImportJournals(ctx)
	require.NoError(t, err)
	p, err := e.MigratePayments(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, p.Migrated)

	// a payment the legacy system received later, dated before the posted day
	f.reader.add("account.payment", map[string]any{
		"id": 221, "payment_type": "inbound", "amount": 100,
		"journal_id": m2o(7, "Caja"), "payment_date": "2024-01-10", "state": "posted",
	})
	p, err = e.MigratePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Failed)

	var statements []models.CashStatement
	require.NoError(t, f.db.Where("journal_id = ?", front.ID).Find(&statements).Error)
	require.Len(t, statements, 1)
	assert.Equal(t, models.StatementStatePosted, statements[0].State)
	requireDecimal(t, "0", statements[0].BalanceStart, "posted start")
	requireDecimal(t, "500", statements[0].BalanceEndReal, "posted end")

	var log models.MigrationLog
	require.NoError(t, f.db.Where("run_id = ? AND remote_id = ?", f.run.ID, 221).Take(&log).Error)
	assert.Equal(t, models.LogCodeReconciliationWarning, log.Code)
	assert.Contains(t, log.Message, reconcile.ReasonBehindPosted)
}
