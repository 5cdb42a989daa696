package services

import (
	"context"
	"sync"
	"testing"
	"time"

	config "github.com/anjiri1684/affiliate_ledger/configs"
	"github.com/anjiri1684/affiliate_ledger/database/dbtest"
	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recordingPublisher) count(eventType string) int {
	n := 0
	for _, t := range r.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

type ledger struct {
	db          *gorm.DB
	clock       *fakeClock
	events      *recordingPublisher
	policy      config.LedgerPolicy
	locker      *AffiliateLocker
	affiliates  *AffiliateService
	referrals   *ReferralService
	commissions *CommissionService
	payouts     *PayoutService
	coupons     *CouponService
	orders      *OrderService
}

func newLedger(t *testing.T) *ledger {
	t.Helper()
	return newLedgerOn(t, dbtest.Open(t))
}

func newLedgerOn(t *testing.T, db *gorm.DB) *ledger {
	t.Helper()
	policy := config.DefaultLedgerPolicy()
	policy.LockRetryBackoff = time.Millisecond

	l := &ledger{db: db, clock: newFakeClock(), events: &recordingPublisher{}, policy: policy}
	l.locker = NewAffiliateLocker(db, policy)
	l.referrals = NewReferralService(db, policy, l.events, l.clock.Now)
	l.commissions = NewCommissionService(db, l.locker, l.referrals, policy, l.events, l.clock.Now)
	l.payouts = NewPayoutService(db, l.locker, policy, l.events, l.clock.Now)
	l.affiliates = NewAffiliateService(db, l.locker, l.events, l.clock.Now)
	l.coupons = NewCouponService(db, l.clock.Now)
	l.orders = NewOrderService(db, l.referrals, l.commissions, l.clock.Now)
	return l
}

func (l *ledger) createUser(t *testing.T, name, email string) *models.User {
	t.Helper()
	u := models.User{FullName: name, Email: email, Password: "x", Role: models.RoleCustomer, IsActive: true}
	if err := l.db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &u
}

func (l *ledger) createAffiliate(t *testing.T, status string) *models.Affiliate {
	t.Helper()
	user := l.createUser(t, "Affiliate User", uuid.NewString()[:8]+"@affiliates.test")
	a := models.Affiliate{
		UserID: user.ID,
		Code:   "AFF" + uuid.NewString()[:4],
		Status: status,
	}
	a.Code = normalizeCouponCode(a.Code)
	if err := l.db.Omit(clause.Associations).Create(&a).Error; err != nil {
		t.Fatalf("create affiliate: %v", err)
	}
	a.User = *user
	return &a
}

func (l *ledger) createProduct(t *testing.T, rate *string) *models.Product {
	t.Helper()
	p := models.Product{Name: "Gold Bar 10g", Price: decimal.NewFromInt(1000000), IsActive: true}
	if rate != nil {
		p.CommissionRate = decimal.NewNullDecimal(decimal.RequireFromString(*rate))
	}
	if err := l.db.Create(&p).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return &p
}

func (l *ledger) createOrder(t *testing.T, customer *models.User, product *models.Product, amount int64, status string) *models.Order {
	t.Helper()
	total := decimal.NewFromInt(amount)
	o := models.Order{
		OrderNumber:    "ORD-" + uuid.NewString()[:12],
		UserID:         customer.ID,
		ProductID:      product.ID,
		Quantity:       1,
		UnitPrice:      total,
		TotalAmount:    total,
		DiscountAmount: decimal.Zero,
		FinalAmount:    total,
		Status:         status,
	}
	if err := l.db.Omit(clause.Associations).Create(&o).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return &o
}

// seedCommission writes a referral and a commission directly, bypassing
// attribution, so balance tests can start from a known ledger.
func (l *ledger) seedCommission(t *testing.T, affiliate *models.Affiliate, amount int64, status string, createdAt time.Time) *models.Commission {
	t.Helper()
	customer := l.createUser(t, "Customer", uuid.NewString()[:8]+"@customers.test")
	product := l.createProduct(t, nil)
	order := l.createOrder(t, customer, product, amount*20, models.OrderStatusPaid)

	referral := models.Referral{
		AffiliateID: affiliate.ID,
		OrderID:     order.ID,
		CustomerID:  customer.ID,
		Status:      models.ReferralStatusConfirmed,
	}
	if err := l.db.Omit(clause.Associations).Create(&referral).Error; err != nil {
		t.Fatalf("create referral: %v", err)
	}

	c := models.Commission{
		AffiliateID:    affiliate.ID,
		ReferralID:     referral.ID,
		OrderID:        order.ID,
		OrderAmount:    order.FinalAmount,
		CommissionRate: decimal.NewFromInt(5),
		Amount:         decimal.NewFromInt(amount),
		PaidAmount:     decimal.Zero,
		Status:         status,
	}
	if err := l.db.Omit(clause.Associations).Create(&c).Error; err != nil {
		t.Fatalf("create commission: %v", err)
	}
	if err := l.db.Model(&models.Commission{}).Where("id = ?", c.ID).Update("created_at", createdAt).Error; err != nil {
		t.Fatalf("backdate commission: %v", err)
	}
	c.CreatedAt = createdAt
	return &c
}

func (l *ledger) verifiedBank(t *testing.T, affiliate *models.Affiliate) *models.BankAccount {
	t.Helper()
	b := models.BankAccount{
		AffiliateID:        affiliate.ID,
		BankName:           "BCA",
		AccountNumber:      "1234567890",
		AccountHolder:      "Affiliate User",
		VerificationStatus: models.BankVerificationVerified,
		IsPrimary:          true,
	}
	if err := l.db.Create(&b).Error; err != nil {
		t.Fatalf("create bank account: %v", err)
	}
	return &b
}

func (l *ledger) createCoupon(t *testing.T, owner *models.Affiliate, discountType string, value decimal.Decimal, limit *int) *models.Coupon {
	t.Helper()
	now := l.clock.Now()
	c := models.Coupon{
		AffiliateID:   owner.ID,
		Code:          normalizeCouponCode("GOLD" + uuid.NewString()[:4]),
		DiscountType:  discountType,
		DiscountValue: value,
		ValidFrom:     now.AddDate(0, 0, -1),
		ValidUntil:    now.AddDate(0, 1, 0),
		UsageLimit:    limit,
		IsActive:      true,
	}
	if err := l.db.Omit(clause.Associations).Create(&c).Error; err != nil {
		t.Fatalf("create coupon: %v", err)
	}
	return &c
}

func (l *ledger) reload(t *testing.T, out interface{}, id uuid.UUID) {
	t.Helper()
	if err := l.db.First(out, "id = ?", id).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
}

func mustDecimal(t *testing.T, got decimal.Decimal, want int64) {
	t.Helper()
	if !got.Equal(decimal.NewFromInt(want)) {
		t.Fatalf("got %s, want %d", got, want)
	}
}

func strPtr(s string) *string { return &s }

func newID() uuid.UUID { return uuid.New() }
