package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/anjiri1684/affiliate_ledger/services"
	"github.com/shopspring/decimal"
)

func (f *fixture) click(t *testing.T, a *models.Affiliate, at time.Time) {
	t.Helper()
	c := models.ReferralClick{AffiliateID: a.ID, IPAddress: "10.0.0.1"}
	if err := f.db.Create(&c).Error; err != nil {
		t.Fatalf("create click: %v", err)
	}
	f.db.Model(&models.ReferralClick{}).Where("id = ?", c.ID).Update("created_at", at)
}

func TestAggregateDayUpserts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t)
	quiet := f.affiliate(t)

	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		f.click(t, a, day.Add(time.Duration(i+1)*time.Hour))
	}
	f.click(t, a, day.AddDate(0, 0, -1).Add(time.Hour))

	f.commission(t, a, 50000, models.OrderStatusPaid, day.Add(3*time.Hour))

	written, err := f.stats.AggregateDay(ctx, day.Add(12*time.Hour), "")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if written != 2 {
		t.Fatalf("written = %d, want one row per approved affiliate", written)
	}

	var stats models.DailyStats
	if err := f.db.Where("affiliate_id = ?", a.ID).First(&stats).Error; err != nil {
		t.Fatalf("load stats: %v", err)
	}
	if stats.Clicks != 4 || stats.Conversions != 1 {
		t.Fatalf("clicks=%d conversions=%d", stats.Clicks, stats.Conversions)
	}
	if !stats.ConversionRate.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("conversion rate = %s", stats.ConversionRate)
	}
	if !stats.CommissionEarned.Equal(decimal.NewFromInt(50000)) || !stats.TotalSales.Equal(decimal.NewFromInt(1000000)) {
		t.Fatalf("earned=%s sales=%s", stats.CommissionEarned, stats.TotalSales)
	}

	var empty models.DailyStats
	if err := f.db.Where("affiliate_id = ?", quiet.ID).First(&empty).Error; err != nil {
		t.Fatalf("quiet affiliate has no row: %v", err)
	}
	if empty.Clicks != 0 || !empty.ConversionRate.IsZero() {
		t.Fatalf("quiet affiliate = %+v", empty)
	}

	f.click(t, a, day.Add(20*time.Hour))
	if _, err := f.stats.AggregateDay(ctx, day, a.Code); err != nil {
		t.Fatalf("re-aggregate: %v", err)
	}

	var rows int64
	f.db.Model(&models.DailyStats{}).Where("affiliate_id = ?", a.ID).Count(&rows)
	if rows != 1 {
		t.Fatalf("rows = %d, re-running a day must update in place", rows)
	}
	f.db.Where("affiliate_id = ?", a.ID).First(&stats)
	if stats.Clicks != 5 || !stats.ConversionRate.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("after rerun clicks=%d rate=%s", stats.Clicks, stats.ConversionRate)
	}

	if _, err := f.stats.AggregateDay(ctx, day, "NOSUCH"); !errors.Is(err, services.ErrAffiliateNotFound) {
		t.Fatalf("unknown code: err = %v", err)
	}
}

func TestStatsForPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t)

	first := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	f.click(t, a, first.Add(time.Hour))
	f.click(t, a, first.AddDate(0, 0, 1).Add(time.Hour))
	f.click(t, a, first.AddDate(0, 0, 1).Add(2*time.Hour))
	f.commission(t, a, 40000, models.OrderStatusPaid, first.AddDate(0, 0, 1).Add(3*time.Hour))

	written, err := f.stats.AggregateDays(ctx, 3)
	if err != nil {
		t.Fatalf("aggregate days: %v", err)
	}
	if written != 3 {
		t.Fatalf("written = %d, want 3", written)
	}

	period, err := f.stats.StatsForPeriod(ctx, a.ID, first, first.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("period: %v", err)
	}
	if len(period.Days) != 3 {
		t.Fatalf("days = %d, want 3", len(period.Days))
	}
	if period.Clicks != 3 || period.Conversions != 1 {
		t.Fatalf("clicks=%d conversions=%d", period.Clicks, period.Conversions)
	}
	if !period.CommissionEarned.Equal(decimal.NewFromInt(40000)) {
		t.Fatalf("earned = %s", period.CommissionEarned)
	}
	if !period.ConversionRate.Equal(decimal.RequireFromString("33.33")) {
		t.Fatalf("rate = %s", period.ConversionRate)
	}

	if _, err := f.stats.StatsForPeriod(ctx, a.ID, first.AddDate(0, 0, 2), first); err == nil {
		t.Fatal("expected an error for a reversed period")
	}
}
