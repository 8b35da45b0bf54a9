package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/reconcile"
	"github.com/mmdatafocus/hotel_migration/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const propertyId = 10

func date(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(remoteId int, amount string) models.StatementLine {
	return models.StatementLine{RemoteId: testutil.IntPtr(remoteId), RemoteLeg: models.LegSource, Amount: dec(amount), Residual: dec(amount)}
}

func statements(t *testing.T, db *gorm.DB, journalId int) []models.CashStatement {
	t.Helper()
	var out []models.CashStatement
	require.NoError(t, db.Where("journal_id = ?", journalId).Order("date, sequence").Find(&out).Error)
	return out
}

func TestTransferBetweenCashJournals(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	transfer := mapper.Leg{RemoteId: 55, Amount: dec("100"), Date: date(10), IsInternalTransfer: true, PartnerId: testutil.IntPtr(2)}
	src, dst := transfer, transfer
	src.Leg, src.JournalId, src.Amount = models.LegSource, 1, dec("-100")
	dst.Leg, dst.JournalId = models.LegDestination, 2

	a := reconcile.NewCashBook(db, propertyId, 1, 0)
	b := reconcile.NewCashBook(db, propertyId, 2, 0)
	stA, err := a.AppendDay(ctx, date(10), []models.StatementLine{reconcile.StatementLineFromLeg(propertyId, src)})
	require.NoError(t, err)
	stB, err := b.AppendDay(ctx, date(10), []models.StatementLine{reconcile.StatementLineFromLeg(propertyId, dst)})
	require.NoError(t, err)

	assert.Equal(t, "-100", stA.BalanceEndReal.String())
	assert.Equal(t, "100", stB.BalanceEndReal.String())

	for _, cb := range []*reconcile.CashBook{a, b} {
		warnings, err := cb.VerifyChain(ctx)
		require.NoError(t, err)
		assert.Empty(t, warnings)
	}
	w, err := a.CheckJournalTotals(ctx, []int{55}, dec("-100"))
	require.NoError(t, err)
	assert.Nil(t, w)
	w, err = b.CheckJournalTotals(ctx, []int{55}, dec("100"))
	require.NoError(t, err)
	assert.Nil(t, w)

	legs, err := reconcile.MigratedLegs(ctx, db, propertyId, []int{55, 56})
	require.NoError(t, err)
	assert.Equal(t, map[reconcile.LegKey]bool{{55, models.LegSource}: true, {55, models.LegDestination}: true}, legs)
}

func TestAppendDayCarriesBalanceForward(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	cb := reconcile.NewCashBook(db, propertyId, 1, 0)

	_, err := cb.AppendDay(ctx, date(10), []models.StatementLine{line(1, "50"), line(2, "-20")})
	require.NoError(t, err)
	_, err = cb.AppendDay(ctx, date(12), []models.StatementLine{line(3, "10")})
	require.NoError(t, err)
	// an earlier day arriving late shifts every later statement
	_, err = cb.AppendDay(ctx, date(11), []models.StatementLine{line(4, "5")})
	require.NoError(t, err)
	_, err = cb.AppendDay(ctx, date(10), []models.StatementLine{line(5, "1")})
	require.NoError(t, err)

	chain := statements(t, db, 1)
	require.Len(t, chain, 3)
	wantEnds := []string{"31", "36", "46"}
	for i, s := range chain {
		assert.Equal(t, wantEnds[i], s.BalanceEndReal.String(), "statement %s", s.Name)
		if i > 0 {
			assert.True(t, s.BalanceStart.Equal(chain[i-1].BalanceEndReal), "statement %s start", s.Name)
		}
	}
	warnings, err := cb.VerifyChain(ctx)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestAppendDayNeverMovesPostedStatements(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	cb := reconcile.NewCashBook(db, propertyId, 1, 0)

	closed, err := cb.AppendDay(ctx, date(20), []models.StatementLine{line(1, "500")})
	require.NoError(t, err)
	_, err = cb.PostChain(ctx, closed)
	require.NoError(t, err)

	_, err = cb.AppendDay(ctx, date(10), []models.StatementLine{line(2, "100")})
	var w reconcile.ReconciliationWarning
	require.True(t, errors.As(err, &w), "got %v", err)
	assert.Contains(t, w.Reason, reconcile.ReasonBehindPosted)
	assert.Equal(t, closed.ID, w.StatementId)
	assert.Equal(t, "600", w.Actual.String())

	chain := statements(t, db, 1)
	require.Len(t, chain, 1)
	assert.Equal(t, models.StatementStatePosted, chain[0].State)
	assert.Equal(t, "0", chain[0].BalanceStart.String())
	assert.Equal(t, "500", chain[0].BalanceEndReal.String())
	var lines int64
	require.NoError(t, db.Model(&models.StatementLine{}).Count(&lines).Error)
	assert.EqualValues(t, 1, lines)

	// later days still chain on the posted balance
	next, err := cb.AppendDay(ctx, date(25), []models.StatementLine{line(3, "5")})
	require.NoError(t, err)
	assert.Equal(t, "500", next.BalanceStart.String())
	assert.Equal(t, "505", next.BalanceEndReal.String())
	warnings, err := cb.VerifyChain(ctx)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestPostedDayGetsSupplementaryStatement(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	cb := reconcile.NewCashBook(db, propertyId, 1, 0)

	first, err := cb.AppendDay(ctx, date(10), []models.StatementLine{line(1, "40")})
	require.NoError(t, err)
	n, err := cb.PostChain(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	extra, err := cb.AppendDay(ctx, date(10), []models.StatementLine{line(2, "2")})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, extra.ID)
	assert.Equal(t, 1, extra.Sequence)
	assert.Equal(t, "40", extra.BalanceStart.String())
	assert.Equal(t, "42", extra.BalanceEndReal.String())
	assert.Equal(t, models.StatementStateDraft, extra.State)
}

func TestPostChainWalksAdjacentDrafts(t *testing.T) {
	cases := []struct {
		name  string
		limit int
		want  int
	}{
		{"unbounded", 0, 5},
		{"bounded", 1, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := testutil.OpenDB(t)
			ctx := context.Background()
			cb := reconcile.NewCashBook(db, propertyId, 1, tc.limit)
			var mid *models.CashStatement
			for d := 1; d <= 5; d++ {
				st, err := cb.AppendDay(ctx, date(d), []models.StatementLine{line(d, "1")})
				require.NoError(t, err)
				if d == 3 {
					mid = st
				}
			}
			n, err := cb.PostChain(ctx, mid)
			require.NoError(t, err)
			assert.Equal(t, tc.want, n)

			posted := 0
			for _, s := range statements(t, db, 1) {
				if s.State == models.StatementStatePosted {
					posted++
				}
			}
			assert.Equal(t, tc.want, posted)
		})
	}
}

func TestVerifyChainReportsBrokenBalances(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	cb := reconcile.NewCashBook(db, propertyId, 1, 0)
	_, err := cb.AppendDay(ctx, date(1), []models.StatementLine{line(1, "10")})
	require.NoError(t, err)
	second, err := cb.AppendDay(ctx, date(2), []models.StatementLine{line(2, "10")})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.CashStatement{}).Where("id = ?", second.ID).Update("balance_start", dec("7")).Error)
	warnings, err := cb.VerifyChain(ctx)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Equal(t, reconcile.ReasonStartMismatch, warnings[0].Reason)
	assert.Equal(t, reconcile.ReasonEndMismatch, warnings[1].Reason)

	w, err := cb.CheckJournalTotals(ctx, []int{1, 2}, dec("25"))
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "20", w.Actual.String())
	assert.Contains(t, w.Error(), reconcile.ReasonJournalTotal)
}

func TestPostBankLegIsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	leg := mapper.Leg{
		RemoteId: 9, Leg: models.LegSource, JournalId: 3, Amount: dec("-25.5"),
		PaymentType: models.PaymentTypeOutbound, PartnerType: models.PartnerTypeCustomer, Date: date(4),
	}
	p, created, err := reconcile.PostBankLeg(ctx, db, propertyId, leg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "25.5", p.Amount.String())
	assert.Equal(t, models.PaymentStatePosted, p.State)

	again, created, err := reconcile.PostBankLeg(ctx, db, propertyId, leg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, again.ID)
}
