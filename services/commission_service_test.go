package services

import (
	"context"
	"errors"
	"testing"

	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/shopspring/decimal"
)

func TestCalculateCommission(t *testing.T) {
	tests := []struct {
		amount string
		rate   string
		want   string
	}{
		{"1000000", "7.5", "75000"},
		{"1000000", "5", "50000"},
		{"333333", "5", "16667"},
		{"100", "0", "0"},
		{"0", "10", "0"},
		{"-500", "10", "0"},
	}
	for _, tt := range tests {
		got := CalculateCommission(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.rate))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("CalculateCommission(%s, %s) = %s, want %s", tt.amount, tt.rate, got, tt.want)
		}
	}
}

func TestCommissionRatePriority(t *testing.T) {
	fallback := decimal.NewFromInt(5)
	custom := &models.Affiliate{CustomCommissionRate: decimal.NewNullDecimal(decimal.NewFromInt(12))}
	plain := &models.Affiliate{}
	rated := &models.Product{CommissionRate: decimal.NewNullDecimal(decimal.RequireFromString("7.5"))}
	unrated := &models.Product{}

	tests := []struct {
		name      string
		affiliate *models.Affiliate
		product   *models.Product
		want      string
	}{
		{"custom beats product", custom, rated, "12"},
		{"product beats default", plain, rated, "7.5"},
		{"default", plain, unrated, "5"},
		{"missing product", plain, nil, "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CommissionRate(tt.affiliate, tt.product, fallback)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("rate = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCreateCommissionUsesProductRate(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	customer := l.createUser(t, "Customer", "customer@example.com")
	order := l.createOrder(t, customer, l.createProduct(t, strPtr("7.5")), 1000000, models.OrderStatusPaid)

	referral, err := l.referrals.Attribute(ctx, order, affiliate.Code)
	if err != nil || referral == nil {
		t.Fatalf("attribute: %v", err)
	}

	commission, err := l.commissions.CreateCommission(ctx, order, referral)
	if err != nil {
		t.Fatalf("create commission: %v", err)
	}
	mustDecimal(t, commission.Amount, 75000)
	if commission.Status != models.CommissionStatusPending {
		t.Fatalf("status = %s, want pending", commission.Status)
	}

	again, err := l.commissions.CreateCommission(ctx, order, referral)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if again.ID != commission.ID {
		t.Fatal("second call must return the existing commission")
	}
	if n := l.events.count(EventCommissionCreated); n != 1 {
		t.Fatalf("created events = %d, want 1", n)
	}
}

func TestCreateCommissionUsesCustomRate(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	if _, err := l.affiliates.SetCustomRate(ctx, affiliate.ID, decimal.NewNullDecimal(decimal.NewFromInt(10))); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	customer := l.createUser(t, "Customer", "customer@example.com")
	order := l.createOrder(t, customer, l.createProduct(t, strPtr("7.5")), 1000000, models.OrderStatusPaid)
	referral, _ := l.referrals.Attribute(ctx, order, affiliate.Code)

	commission, err := l.commissions.CreateCommission(ctx, order, referral)
	if err != nil {
		t.Fatalf("create commission: %v", err)
	}
	mustDecimal(t, commission.Amount, 100000)
}

func TestBalanceSubtractsInFlightPayouts(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	bank := l.verifiedBank(t, affiliate)

	now := l.clock.Now()
	l.seedCommission(t, affiliate, 300000, models.CommissionStatusAvailable, now.AddDate(0, 0, -40))
	l.seedCommission(t, affiliate, 200000, models.CommissionStatusAvailable, now.AddDate(0, 0, -35))
	l.seedCommission(t, affiliate, 80000, models.CommissionStatusPending, now.AddDate(0, 0, -2))
	l.seedCommission(t, affiliate, 10000, models.CommissionStatusVoided, now.AddDate(0, 0, -50))

	if _, err := l.payouts.RequestPayout(ctx, affiliate.ID, bank.ID, decimal.NewFromInt(200000)); err != nil {
		t.Fatalf("request payout: %v", err)
	}

	balance, err := l.commissions.GetBalance(ctx, affiliate.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	mustDecimal(t, balance, 300000)

	summary, err := l.commissions.GetSummary(ctx, affiliate.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	mustDecimal(t, summary.Pending, 80000)
	mustDecimal(t, summary.Available, 500000)
	mustDecimal(t, summary.InFlight, 200000)
	mustDecimal(t, summary.Withdrawable, 300000)
	mustDecimal(t, summary.Paid, 0)
	mustDecimal(t, summary.Total, 580000)
}

func TestBalanceUnknownAffiliate(t *testing.T) {
	l := newLedger(t)
	_, err := l.commissions.GetBalance(context.Background(), newID())
	if !errors.Is(err, ErrAffiliateNotFound) {
		t.Fatalf("err = %v, want ErrAffiliateNotFound", err)
	}
}

func TestVoidIsTerminal(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	now := l.clock.Now()

	pending := l.seedCommission(t, affiliate, 50000, models.CommissionStatusPending, now)
	voided, err := l.commissions.Void(ctx, pending.ID, "fraud")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != models.CommissionStatusVoided || voided.VoidedReason != "fraud" {
		t.Fatalf("commission = %s/%q", voided.Status, voided.VoidedReason)
	}

	var referral models.Referral
	l.reload(t, &referral, pending.ReferralID)
	if referral.Status != models.ReferralStatusVoided {
		t.Fatalf("referral status = %s, want voided", referral.Status)
	}

	if _, err := l.commissions.Void(ctx, pending.ID, "again"); err != nil {
		t.Fatalf("second void: %v", err)
	}
	if n := l.events.count(EventCommissionVoided); n != 1 {
		t.Fatalf("voided events = %d, want 1", n)
	}

	paid := l.seedCommission(t, affiliate, 70000, models.CommissionStatusPaid, now)
	got, err := l.commissions.Void(ctx, paid.ID, "too late")
	if err != nil {
		t.Fatalf("void paid: %v", err)
	}
	if got.Status != models.CommissionStatusPaid {
		t.Fatalf("paid commission became %s", got.Status)
	}

	if _, err := l.commissions.Void(ctx, newID(), "missing"); !errors.Is(err, ErrCommissionNotFound) {
		t.Fatalf("err = %v, want ErrCommissionNotFound", err)
	}
}

func TestVoidedCommissionLeavesBalance(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)

	c := l.seedCommission(t, affiliate, 120000, models.CommissionStatusAvailable, l.clock.Now())
	if _, err := l.commissions.VoidForOrder(ctx, c.OrderID, "order refunded"); err != nil {
		t.Fatalf("void for order: %v", err)
	}

	balance, err := l.commissions.GetBalance(ctx, affiliate.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	mustDecimal(t, balance, 0)

	none, err := l.commissions.VoidForOrder(ctx, newID(), "no commission")
	if err != nil || none != nil {
		t.Fatalf("order without commission: %v %v", none, err)
	}
}

func TestCreateCommissionRequiresPaidOrder(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	customer := l.createUser(t, "Customer", "unpaid@example.com")
	order := l.createOrder(t, customer, l.createProduct(t, nil), 1000000, models.OrderStatusPending)

	referral, err := l.referrals.AttributeOrder(ctx, order.ID, affiliate.Code)
	if err != nil || referral == nil {
		t.Fatalf("attribute: %v %v", referral, err)
	}

	commission, err := l.commissions.CreateCommissionForOrder(ctx, order.ID)
	if !errors.Is(err, ErrInvalidOrderState) {
		t.Fatalf("err = %v, want ErrInvalidOrderState", err)
	}
	if commission != nil {
		t.Fatalf("commission = %+v for an unpaid order", commission)
	}

	var count int64
	l.db.Model(&models.Commission{}).Where("order_id = ?", order.ID).Count(&count)
	if count != 0 {
		t.Fatalf("commissions = %d, want 0", count)
	}
}

func TestVoidKeepsPartlySettledCommission(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	bank := l.verifiedBank(t, affiliate)
	c := l.seedCommission(t, affiliate, 100000, models.CommissionStatusAvailable, l.clock.Now().AddDate(0, 0, -40))

	payout, err := l.payouts.RequestPayout(ctx, affiliate.ID, bank.ID, decimal.NewFromInt(60000))
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if _, err := l.payouts.SettlePayout(ctx, payout.ID, "TRX-1"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	got, changed, err := l.commissions.TryVoid(ctx, c.ID, "order refunded")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if changed || got.Status != models.CommissionStatusAvailable {
		t.Fatalf("changed=%v status=%s, settled funds must not be voided", changed, got.Status)
	}
	mustDecimal(t, got.PaidAmount, 60000)

	summary, err := l.commissions.GetSummary(ctx, affiliate.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	mustDecimal(t, summary.Paid, 60000)
	mustDecimal(t, summary.Withdrawable, 40000)
	if n := l.events.count(EventCommissionVoided); n != 0 {
		t.Fatalf("voided events = %d, want 0", n)
	}
}

func TestTryVoidReportsChange(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	c := l.seedCommission(t, affiliate, 50000, models.CommissionStatusPending, l.clock.Now())

	if _, changed, err := l.commissions.TryVoid(ctx, c.ID, "fraud"); err != nil || !changed {
		t.Fatalf("first void: changed=%v err=%v", changed, err)
	}
	got, changed, err := l.commissions.TryVoid(ctx, c.ID, "fraud")
	if err != nil {
		t.Fatalf("second void: %v", err)
	}
	if changed || got.Status != models.CommissionStatusVoided {
		t.Fatalf("second void: changed=%v status=%s", changed, got.Status)
	}
}
