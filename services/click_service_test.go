package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anjiri1684/affiliate_ledger/models"
)

func TestMemoryDeduper(t *testing.T) {
	d := NewMemoryDeduper(time.Hour)
	ctx := context.Background()

	ok, _ := d.Allow(ctx, "ABC1234:visitor")
	if !ok {
		t.Fatal("first click must be allowed")
	}
	ok, _ = d.Allow(ctx, "ABC1234:visitor")
	if ok {
		t.Fatal("repeat click inside the window must be dropped")
	}
	ok, _ = d.Allow(ctx, "ABC1234:other")
	if !ok {
		t.Fatal("a different visitor must be allowed")
	}
}

type failingDeduper struct{}

func (failingDeduper) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestTrackClick(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	svc := NewClickService(l.db, NewMemoryDeduper(24*time.Hour))

	in := ClickInput{Code: affiliate.Code, IPAddress: "10.0.0.1", UserAgent: "Mozilla/5.0", LandingPage: "/products/gold"}
	got, recorded, err := svc.Track(ctx, in)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if !recorded || got.ID != affiliate.ID {
		t.Fatalf("recorded=%v affiliate=%v", recorded, got)
	}

	_, recorded, err = svc.Track(ctx, in)
	if err != nil {
		t.Fatalf("repeat track: %v", err)
	}
	if recorded {
		t.Fatal("repeat click must not be stored")
	}

	var clicks int64
	l.db.Model(&models.ReferralClick{}).Where("affiliate_id = ?", affiliate.ID).Count(&clicks)
	if clicks != 1 {
		t.Fatalf("clicks = %d, want 1", clicks)
	}

	pending := l.createAffiliate(t, models.AffiliateStatusPending)
	if _, _, err := svc.Track(ctx, ClickInput{Code: pending.Code}); !errors.Is(err, ErrAffiliateNotFound) {
		t.Fatalf("pending affiliate: err = %v", err)
	}
}

func TestTrackClickWhenDeduperFails(t *testing.T) {
	l := newLedger(t)
	affiliate := l.createAffiliate(t, models.AffiliateStatusApproved)
	svc := NewClickService(l.db, failingDeduper{})

	_, recorded, err := svc.Track(context.Background(), ClickInput{Code: affiliate.Code, IPAddress: "10.0.0.2"})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if !recorded {
		t.Fatal("click should be recorded when dedupe is unavailable")
	}
}
