package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/shopspring/decimal"
)

func TestReceiptPublishedOnSettlement(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	bank := l.verifiedBank(t, affiliate)
	l.seedCommission(t, affiliate, 150000, models.CommissionStatusAvailable, l.clock.Now().AddDate(0, 0, -40))

	payout, err := l.payouts.RequestPayout(ctx, affiliate.ID, bank.ID, decimal.NewFromInt(150000))
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if _, err := l.payouts.SettlePayout(ctx, payout.ID, "TRX-77"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	var renderedHTML, uploadedID string
	receipts := NewReceiptService(l.db,
		func(_ context.Context, html string) ([]byte, error) {
			renderedHTML = html
			return []byte("%PDF-1.4"), nil
		},
		func(_ context.Context, data []byte, publicID string) (string, error) {
			uploadedID = publicID
			return "https://cdn.example.com/" + publicID + ".pdf", nil
		})

	if err := receipts.Publish(ctx, Event{Type: EventPayoutRequested, PayoutID: &payout.ID}); err != nil {
		t.Fatalf("non-settlement event: %v", err)
	}
	if renderedHTML != "" {
		t.Fatal("receipts are only rendered for settled payouts")
	}

	if err := receipts.Publish(ctx, Event{Type: EventPayoutSettled, PayoutID: &payout.ID}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.Contains(renderedHTML, "TRX-77") || !strings.Contains(renderedHTML, "******7890") {
		t.Fatalf("receipt is missing reference or masked account:\n%s", renderedHTML)
	}
	if strings.Contains(renderedHTML, "1234567890") {
		t.Fatal("receipt leaks the full account number")
	}
	if !strings.Contains(uploadedID, payout.ID.String()) {
		t.Fatalf("public id = %q", uploadedID)
	}

	var stored models.Payout
	l.reload(t, &stored, payout.ID)
	if stored.ReceiptURL == nil || !strings.HasPrefix(*stored.ReceiptURL, "https://cdn.example.com/") {
		t.Fatalf("receipt url = %v", stored.ReceiptURL)
	}
}

func TestReceiptUploadFailure(t *testing.T) {
	l := newLedger(t)
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	payout := models.Payout{
		AffiliateID:           affiliate.ID,
		BankAccountID:         newID(),
		Amount:                decimal.NewFromInt(60000),
		Status:                models.PayoutStatusPaid,
		BankNameSnapshot:      "BCA",
		AccountNumberSnapshot: "1234567890",
		AccountHolderSnapshot: "Affiliate User",
	}
	if err := l.db.Omit("Affiliate").Create(&payout).Error; err != nil {
		t.Fatalf("create payout: %v", err)
	}

	receipts := NewReceiptService(l.db,
		func(context.Context, string) ([]byte, error) { return []byte("pdf"), nil },
		func(context.Context, []byte, string) (string, error) { return "", errors.New("upload refused") })

	err := receipts.Publish(context.Background(), Event{Type: EventPayoutSettled, PayoutID: &payout.ID})
	if err == nil || !strings.Contains(err.Error(), "upload refused") {
		t.Fatalf("err = %v", err)
	}
}
