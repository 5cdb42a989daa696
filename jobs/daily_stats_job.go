package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/anjiri1684/affiliate_ledger/services"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	clicksPerAffiliateQuery = `
		SELECT affiliate_id, COUNT(*) AS n
		FROM referral_clicks
		WHERE created_at >= ? AND created_at < ?
		GROUP BY affiliate_id`

	conversionsPerAffiliateQuery = `
		SELECT r.affiliate_id, COUNT(*) AS n, COALESCE(SUM(o.final_amount), 0) AS total
		FROM referrals r
		JOIN orders o ON o.id = r.order_id
		WHERE r.created_at >= ? AND r.created_at < ? AND r.status IN (?, ?)
		GROUP BY r.affiliate_id`

	earnedPerAffiliateQuery = `
		SELECT affiliate_id, COUNT(*) AS n, COALESCE(SUM(amount), 0) AS total
		FROM commissions
		WHERE created_at >= ? AND created_at < ?
		GROUP BY affiliate_id`

	maturedPerAffiliateQuery = `
		SELECT affiliate_id, COUNT(*) AS n, COALESCE(SUM(amount), 0) AS total
		FROM commissions
		WHERE matured_at >= ? AND matured_at < ?
		GROUP BY affiliate_id`
)

type affiliateAggregate struct {
	AffiliateID uuid.UUID       `db:"affiliate_id"`
	N           int64           `db:"n"`
	Total       decimal.Decimal `db:"total"`
}

// DailyStatsJob rebuilds the per-affiliate daily snapshot from the ledger
// tables. The aggregation queries go through sqlx on the same pool gorm uses.
type DailyStatsJob struct {
	db    *gorm.DB
	sqlx  *sqlx.DB
	clock services.Clock
}

func NewDailyStatsJob(db *gorm.DB, clock services.Clock) (*DailyStatsJob, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if clock == nil {
		clock = services.SystemClock
	}
	return &DailyStatsJob{db: db, sqlx: sqlx.NewDb(sqlDB, sqlxDriverName(db)), clock: clock}, nil
}

// sqlx picks the bindvar style from the driver name.
func sqlxDriverName(db *gorm.DB) string {
	if db.Dialector.Name() == "postgres" {
		return "pgx"
	}
	return db.Dialector.Name()
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	d := date.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Run aggregates yesterday for every approved affiliate.
func (j *DailyStatsJob) Run(ctx context.Context) (int, error) {
	return j.AggregateDay(ctx, j.clock().AddDate(0, 0, -1), "")
}

// AggregateDays aggregates the n days before today, oldest first.
func (j *DailyStatsJob) AggregateDays(ctx context.Context, n int) (int, error) {
	if n < 1 {
		n = 1
	}
	today := j.clock()
	written := 0
	for i := n; i >= 1; i-- {
		rows, err := j.AggregateDay(ctx, today.AddDate(0, 0, -i), "")
		if err != nil {
			return written, err
		}
		written += rows
	}
	return written, nil
}

// AggregateDay upserts one DailyStats row per approved affiliate for date.
// A non-empty affiliateCode limits the run to that affiliate.
func (j *DailyStatsJob) AggregateDay(ctx context.Context, date time.Time, affiliateCode string) (int, error) {
	start, end := dayBounds(date)

	query := j.db.WithContext(ctx).Where("status = ?", models.AffiliateStatusApproved)
	if affiliateCode != "" {
		query = query.Where("code = ?", strings.ToUpper(strings.TrimSpace(affiliateCode)))
	}
	var affiliates []models.Affiliate
	if err := query.Find(&affiliates).Error; err != nil {
		return 0, fmt.Errorf("failed to load affiliates: %w", err)
	}
	if len(affiliates) == 0 {
		if affiliateCode != "" {
			return 0, services.ErrAffiliateNotFound
		}
		return 0, nil
	}

	clicks, err := j.aggregate(ctx, clicksPerAffiliateQuery, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to count clicks: %w", err)
	}
	conversions, err := j.aggregate(ctx, conversionsPerAffiliateQuery, start, end,
		models.ReferralStatusConfirmed, models.ReferralStatusPaid)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversions: %w", err)
	}
	earned, err := j.aggregate(ctx, earnedPerAffiliateQuery, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to sum earned commissions: %w", err)
	}
	matured, err := j.aggregate(ctx, maturedPerAffiliateQuery, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to sum matured commissions: %w", err)
	}

	for _, a := range affiliates {
		stats := models.DailyStats{
			AffiliateID:       a.ID,
			Date:              start,
			Clicks:            clicks[a.ID].N,
			Conversions:       conversions[a.ID].N,
			ConversionRate:    models.ConversionRate(conversions[a.ID].N, clicks[a.ID].N),
			CommissionEarned:  earned[a.ID].Total,
			CommissionMatured: matured[a.ID].Total,
			TotalSales:        conversions[a.ID].Total,
		}
		err := j.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "affiliate_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"clicks", "conversions", "conversion_rate",
				"commission_earned", "commission_matured", "total_sales", "updated_at",
			}),
		}).Create(&stats).Error
		if err != nil {
			return 0, fmt.Errorf("failed to upsert stats for affiliate %s: %w", a.Code, err)
		}
	}

	log.Printf("✅ Aggregated daily stats for %s: %d affiliate(s).", start.Format("2006-01-02"), len(affiliates))
	return len(affiliates), nil
}

func (j *DailyStatsJob) aggregate(ctx context.Context, query string, args ...interface{}) (map[uuid.UUID]affiliateAggregate, error) {
	var rows []affiliateAggregate
	if err := j.sqlx.SelectContext(ctx, &rows, j.sqlx.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]affiliateAggregate, len(rows))
	for _, r := range rows {
		out[r.AffiliateID] = r
	}
	return out, nil
}

type PeriodStats struct {
	From              time.Time           `json:"from"`
	To                time.Time           `json:"to"`
	Clicks            int64               `json:"clicks"`
	Conversions       int64               `json:"conversions"`
	ConversionRate    decimal.Decimal     `json:"conversion_rate"`
	CommissionEarned  decimal.Decimal     `json:"commission_earned"`
	CommissionMatured decimal.Decimal     `json:"commission_matured"`
	TotalSales        decimal.Decimal     `json:"total_sales"`
	Days              []models.DailyStats `json:"days"`
}

// StatsForPeriod returns the stored snapshots between from and to, inclusive.
func (j *DailyStatsJob) StatsForPeriod(ctx context.Context, affiliateID uuid.UUID, from, to time.Time) (*PeriodStats, error) {
	start, _ := dayBounds(from)
	_, end := dayBounds(to)
	if !end.After(start) {
		return nil, errors.New("period end must not be before its start")
	}

	out := &PeriodStats{From: start, To: end.AddDate(0, 0, -1), Days: []models.DailyStats{}}
	err := j.db.WithContext(ctx).
		Where("affiliate_id = ? AND date >= ? AND date < ?", affiliateID, start, end).
		Order("date ASC").Find(&out.Days).Error
	if err != nil {
		return nil, err
	}

	for _, d := range out.Days {
		out.Clicks += d.Clicks
		out.Conversions += d.Conversions
		out.CommissionEarned = out.CommissionEarned.Add(d.CommissionEarned)
		out.CommissionMatured = out.CommissionMatured.Add(d.CommissionMatured)
		out.TotalSales = out.TotalSales.Add(d.TotalSales)
	}
	out.ConversionRate = models.ConversionRate(out.Conversions, out.Clicks)
	return out, nil
}
