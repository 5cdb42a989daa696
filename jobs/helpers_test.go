package jobs

import (
	"strings"
	"testing"
	"time"

	config "github.com/anjiri1684/affiliate_ledger/configs"
	"github.com/anjiri1684/affiliate_ledger/database/dbtest"
	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/anjiri1684/affiliate_ledger/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type fixture struct {
	db          *gorm.DB
	commissions *services.CommissionService
	maturation  *MaturationJob
	stats       *DailyStatsJob
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	policy := config.DefaultLedgerPolicy()
	locker := services.NewAffiliateLocker(db, policy)
	referrals := services.NewReferralService(db, policy, services.NopPublisher{}, fixedClock)
	commissions := services.NewCommissionService(db, locker, referrals, policy, services.NopPublisher{}, fixedClock)

	stats, err := NewDailyStatsJob(db, fixedClock)
	if err != nil {
		t.Fatalf("stats job: %v", err)
	}
	return &fixture{
		db:          db,
		commissions: commissions,
		maturation:  NewMaturationJob(db, locker, commissions, services.NopPublisher{}, fixedClock),
		stats:       stats,
	}
}

func (f *fixture) affiliate(t *testing.T) *models.Affiliate {
	t.Helper()
	user := models.User{FullName: "Affiliate", Email: uuid.NewString()[:8] + "@affiliates.test", Password: "x", Role: models.RoleAffiliate}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	a := models.Affiliate{UserID: user.ID, Code: strings.ToUpper("J" + uuid.NewString()[:6]), Status: models.AffiliateStatusApproved}
	if err := f.db.Omit(clause.Associations).Create(&a).Error; err != nil {
		t.Fatalf("create affiliate: %v", err)
	}
	return &a
}

// commission writes an order, its referral and a commission created at
// createdAt.
func (f *fixture) commission(t *testing.T, a *models.Affiliate, amount int64, orderStatus string, createdAt time.Time) *models.Commission {
	t.Helper()
	order := models.Order{
		OrderNumber:    "ORD-" + uuid.NewString()[:12],
		UserID:         uuid.New(),
		ProductID:      uuid.New(),
		Quantity:       1,
		UnitPrice:      decimal.NewFromInt(amount * 20),
		TotalAmount:    decimal.NewFromInt(amount * 20),
		DiscountAmount: decimal.Zero,
		FinalAmount:    decimal.NewFromInt(amount * 20),
		Status:         orderStatus,
	}
	if err := f.db.Omit(clause.Associations).Create(&order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	referral := models.Referral{AffiliateID: a.ID, OrderID: order.ID, CustomerID: order.UserID, Status: models.ReferralStatusConfirmed}
	if err := f.db.Omit(clause.Associations).Create(&referral).Error; err != nil {
		t.Fatalf("create referral: %v", err)
	}
	c := models.Commission{
		AffiliateID:    a.ID,
		ReferralID:     referral.ID,
		OrderID:        order.ID,
		OrderAmount:    order.FinalAmount,
		CommissionRate: decimal.NewFromInt(5),
		Amount:         decimal.NewFromInt(amount),
		PaidAmount:     decimal.Zero,
		Status:         models.CommissionStatusPending,
	}
	if err := f.db.Omit(clause.Associations).Create(&c).Error; err != nil {
		t.Fatalf("create commission: %v", err)
	}
	f.db.Model(&models.Commission{}).Where("id = ?", c.ID).Update("created_at", createdAt)
	f.db.Model(&models.Referral{}).Where("id = ?", referral.ID).Update("created_at", createdAt)
	c.CreatedAt = createdAt
	return &c
}

func (f *fixture) status(t *testing.T, id uuid.UUID) string {
	t.Helper()
	var c models.Commission
	if err := f.db.First(&c, "id = ?", id).Error; err != nil {
		t.Fatalf("reload commission: %v", err)
	}
	return c.Status
}
