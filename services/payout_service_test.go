package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/anjiri1684/affiliate_ledger/database/dbtest"
	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/shopspring/decimal"
)

// On SQLite the single pooled connection already serializes the requests;
// the Postgres variant is the one that depends on the affiliate row lock.
func TestRequestPayoutConcurrentWithdrawals(t *testing.T) {
	assertSingleWithdrawal(t, newLedger(t), 2)
}

func TestRequestPayoutConcurrentWithdrawalsPostgres(t *testing.T) {
	assertSingleWithdrawal(t, newLedgerOn(t, dbtest.OpenPostgres(t)), 8)
}

func assertSingleWithdrawal(t *testing.T, l *ledger, callers int) {
	t.Helper()
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	bank := l.verifiedBank(t, affiliate)
	l.seedCommission(t, affiliate, 100000, models.CommissionStatusAvailable, l.clock.Now().AddDate(0, 0, -40))

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.payouts.RequestPayout(ctx, affiliate.ID, bank.ID, decimal.NewFromInt(100000))
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != callers-1 {
		t.Fatalf("succeeded=%d insufficient=%d, want 1 and %d", succeeded, insufficient, callers-1)
	}

	balance, err := l.commissions.GetBalance(ctx, affiliate.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	mustDecimal(t, balance, 0)
}

func TestRequestPayoutValidation(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	approved := l.createAffiliate(t, models.AffiliateStatusApproved)
	bank := l.verifiedBank(t, approved)
	l.seedCommission(t, approved, 60000, models.CommissionStatusAvailable, l.clock.Now().AddDate(0, 0, -40))

	unverified := models.BankAccount{
		AffiliateID:        approved.ID,
		BankName:           "Mandiri",
		AccountNumber:      "9876543210",
		AccountHolder:      "Affiliate User",
		VerificationStatus: models.BankVerificationPending,
	}
	if err := l.db.Create(&unverified).Error; err != nil {
		t.Fatalf("create bank: %v", err)
	}

	suspended := l.createAffiliate(t, models.AffiliateStatusSuspended)
	suspendedBank := l.verifiedBank(t, suspended)
	foreign := l.verifiedBank(t, l.createAffiliate(t, models.AffiliateStatusApproved))

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"below minimum", func() error {
			_, err := l.payouts.RequestPayout(ctx, approved.ID, bank.ID, decimal.NewFromInt(49999))
			return err
		}, ErrBelowMinimum},
		{"more than balance", func() error {
			_, err := l.payouts.RequestPayout(ctx, approved.ID, bank.ID, decimal.NewFromInt(60001))
			return err
		}, ErrInsufficientBalance},
		{"unverified bank", func() error {
			_, err := l.payouts.RequestPayout(ctx, approved.ID, unverified.ID, decimal.NewFromInt(50000))
			return err
		}, ErrBankNotVerified},
		{"someone else's bank", func() error {
			_, err := l.payouts.RequestPayout(ctx, approved.ID, foreign.ID, decimal.NewFromInt(50000))
			return err
		}, ErrBankAccountNotFound},
		{"suspended affiliate", func() error {
			_, err := l.payouts.RequestPayout(ctx, suspended.ID, suspendedBank.ID, decimal.NewFromInt(50000))
			return err
		}, ErrAffiliateNotApproved},
		{"unknown affiliate", func() error {
			_, err := l.payouts.RequestPayout(ctx, newID(), bank.ID, decimal.NewFromInt(50000))
			return err
		}, ErrAffiliateNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	var count int64
	l.db.Model(&models.Payout{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejected requests created %d payout(s)", count)
	}
}

func TestRequestPayoutSnapshotsBank(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	bank := l.verifiedBank(t, affiliate)
	l.seedCommission(t, affiliate, 75000, models.CommissionStatusAvailable, l.clock.Now().AddDate(0, 0, -40))

	payout, err := l.payouts.RequestPayout(ctx, affiliate.ID, bank.ID, decimal.NewFromInt(75000))
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if payout.Status != models.PayoutStatusPending {
		t.Fatalf("status = %s", payout.Status)
	}
	if payout.BankNameSnapshot != "BCA" || payout.AccountNumberSnapshot != "1234567890" {
		t.Fatalf("snapshot = %s %s", payout.BankNameSnapshot, payout.AccountNumberSnapshot)
	}

	l.db.Model(bank).Update("account_number", "0000000000")
	var stored models.Payout
	l.reload(t, &stored, payout.ID)
	if stored.AccountNumberSnapshot != "1234567890" {
		t.Fatal("payout snapshot changed with the bank account")
	}
	if n := l.events.count(EventPayoutRequested); n != 1 {
		t.Fatalf("requested events = %d, want 1", n)
	}
}

func TestRejectedPayoutReleasesFunds(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	bank := l.verifiedBank(t, affiliate)
	l.seedCommission(t, affiliate, 90000, models.CommissionStatusAvailable, l.clock.Now().AddDate(0, 0, -40))

	payout, err := l.payouts.RequestPayout(ctx, affiliate.ID, bank.ID, decimal.NewFromInt(90000))
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if _, err := l.payouts.RejectPayout(ctx, payout.ID, "name mismatch"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	balance, _ := l.commissions.GetBalance(ctx, affiliate.ID)
	mustDecimal(t, balance, 90000)

	if _, err := l.payouts.SettlePayout(ctx, payout.ID, "TRX-1"); !errors.Is(err, ErrInvalidPayoutTransition) {
		t.Fatalf("settling a rejected payout: err = %v", err)
	}
}

func TestPayoutTransitions(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	bank := l.verifiedBank(t, affiliate)
	l.seedCommission(t, affiliate, 500000, models.CommissionStatusAvailable, l.clock.Now().AddDate(0, 0, -40))

	request := func() *models.Payout {
		p, err := l.payouts.RequestPayout(ctx, affiliate.ID, bank.ID, decimal.NewFromInt(50000))
		if err != nil {
			t.Fatalf("request payout: %v", err)
		}
		return p
	}

	p := request()
	if _, err := l.payouts.FailPayout(ctx, p.ID, "bounced"); !errors.Is(err, ErrInvalidPayoutTransition) {
		t.Fatalf("fail from pending: err = %v", err)
	}
	processing, err := l.payouts.MarkProcessing(ctx, p.ID, "queued for transfer")
	if err != nil {
		t.Fatalf("processing: %v", err)
	}
	if processing.Status != models.PayoutStatusProcessing || processing.AdminNotes != "queued for transfer" {
		t.Fatalf("payout = %s %q", processing.Status, processing.AdminNotes)
	}
	if _, err := l.payouts.MarkProcessing(ctx, p.ID, ""); !errors.Is(err, ErrInvalidPayoutTransition) {
		t.Fatalf("processing twice: err = %v", err)
	}
	failed, err := l.payouts.FailPayout(ctx, p.ID, "bounced")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != models.PayoutStatusFailed || failed.ProcessedAt == nil {
		t.Fatalf("payout = %s processed=%v", failed.Status, failed.ProcessedAt)
	}

	if _, err := l.payouts.MarkProcessing(ctx, newID(), ""); !errors.Is(err, ErrPayoutNotFound) {
		t.Fatalf("unknown payout: err = %v", err)
	}

	balance, _ := l.commissions.GetBalance(ctx, affiliate.ID)
	mustDecimal(t, balance, 500000)
}

func TestSettlePayoutAllocatesOldestFirst(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	bank := l.verifiedBank(t, affiliate)

	now := l.clock.Now()
	oldest := l.seedCommission(t, affiliate, 60000, models.CommissionStatusAvailable, now.AddDate(0, 0, -60))
	middle := l.seedCommission(t, affiliate, 50000, models.CommissionStatusAvailable, now.AddDate(0, 0, -50))
	newest := l.seedCommission(t, affiliate, 40000, models.CommissionStatusAvailable, now.AddDate(0, 0, -40))

	payout, err := l.payouts.RequestPayout(ctx, affiliate.ID, bank.ID, decimal.NewFromInt(80000))
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	settled, err := l.payouts.SettlePayout(ctx, payout.ID, "TRX-20260310")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Status != models.PayoutStatusPaid || settled.TransferReference != "TRX-20260310" || settled.TransferDate == nil {
		t.Fatalf("payout = %s %q %v", settled.Status, settled.TransferReference, settled.TransferDate)
	}

	var c models.Commission
	l.reload(t, &c, oldest.ID)
	if c.Status != models.CommissionStatusPaid || c.PayoutID == nil || *c.PayoutID != payout.ID || c.PaidAt == nil {
		t.Fatalf("oldest = %s payout=%v", c.Status, c.PayoutID)
	}
	var referral models.Referral
	l.reload(t, &referral, oldest.ReferralID)
	if referral.Status != models.ReferralStatusPaid {
		t.Fatalf("referral of paid commission = %s", referral.Status)
	}

	c = models.Commission{}
	l.reload(t, &c, middle.ID)
	if c.Status != models.CommissionStatusAvailable {
		t.Fatalf("partly covered commission = %s, want available", c.Status)
	}
	mustDecimal(t, c.PaidAmount, 20000)

	c = models.Commission{}
	l.reload(t, &c, newest.ID)
	if c.Status != models.CommissionStatusAvailable {
		t.Fatalf("untouched commission = %s", c.Status)
	}
	mustDecimal(t, c.PaidAmount, 0)

	summary, err := l.commissions.GetSummary(ctx, affiliate.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	mustDecimal(t, summary.Withdrawable, 70000)
	mustDecimal(t, summary.Paid, 80000)
	mustDecimal(t, summary.InFlight, 0)
	mustDecimal(t, summary.Total, 150000)

	if _, err := l.payouts.SettlePayout(ctx, payout.ID, "TRX-again"); !errors.Is(err, ErrInvalidPayoutTransition) {
		t.Fatalf("settling twice: err = %v", err)
	}
	if n := l.events.count(EventPayoutSettled); n != 1 {
		t.Fatalf("settled events = %d, want 1", n)
	}
}
