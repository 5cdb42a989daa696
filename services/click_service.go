package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// ClickDeduper decides whether a click from the same visitor should be
// counted again.
type ClickDeduper interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryDeduper counts one click per visitor per window inside this process.
type MemoryDeduper struct {
	mu       sync.Mutex
	window   time.Duration
	limiters map[string]*visitorLimiter
}

type visitorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewMemoryDeduper(window time.Duration) *MemoryDeduper {
	return &MemoryDeduper{window: window, limiters: make(map[string]*visitorLimiter)}
}

func (d *MemoryDeduper) Allow(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	v, ok := d.limiters[key]
	if !ok {
		v = &visitorLimiter{limiter: rate.NewLimiter(rate.Every(d.window), 1)}
		d.limiters[key] = v
	}
	v.lastSeen = now

	if len(d.limiters) > 10000 {
		d.prune(now)
	}
	return v.limiter.AllowN(now, 1), nil
}

func (d *MemoryDeduper) prune(now time.Time) {
	for k, v := range d.limiters {
		if now.Sub(v.lastSeen) > d.window {
			delete(d.limiters, k)
		}
	}
}

// RedisDeduper shares the dedupe window across instances with SET NX EX.
type RedisDeduper struct {
	client *redis.Client
	window time.Duration
}

func NewRedisDeduper(client *redis.Client, window time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, window: window}
}

func (d *RedisDeduper) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, "affiliate:click:"+key, 1, d.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

type ClickInput struct {
	Code        string
	IPAddress   string
	UserAgent   string
	RefererURL  string
	LandingPage string
}

type ClickService struct {
	db      *gorm.DB
	deduper ClickDeduper
}

func NewClickService(db *gorm.DB, deduper ClickDeduper) *ClickService {
	return &ClickService{db: db, deduper: deduper}
}

// Track records a referral-link click for an approved affiliate. Repeat
// clicks from the same visitor inside the dedupe window are not stored; the
// affiliate is still returned so callers can redirect.
func (s *ClickService) Track(ctx context.Context, in ClickInput) (*models.Affiliate, bool, error) {
	var affiliate models.Affiliate
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	err := s.db.WithContext(ctx).Where("code = ? AND status = ?", code, models.AffiliateStatusApproved).First(&affiliate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrAffiliateNotFound
		}
		return nil, false, err
	}

	if s.deduper != nil {
		allowed, err := s.deduper.Allow(ctx, visitorKey(affiliate.Code, in.IPAddress, in.UserAgent))
		if err != nil {
			log.Printf("⚠️ Click dedupe unavailable, recording click anyway: %v", err)
		} else if !allowed {
			return &affiliate, false, nil
		}
	}

	click := models.ReferralClick{
		AffiliateID: affiliate.ID,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
		RefererURL:  truncate(in.RefererURL, 1024),
		LandingPage: truncate(in.LandingPage, 1024),
	}
	if err := s.db.WithContext(ctx).Create(&click).Error; err != nil {
		return nil, false, fmt.Errorf("failed to record click: %w", err)
	}
	return &affiliate, true, nil
}

func visitorKey(code, ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return code + ":" + hex.EncodeToString(sum[:8])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
