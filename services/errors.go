package services

import (
	"errors"
	"fmt"
)

var (
	ErrAffiliateNotFound       = errors.New("affiliate not found")
	ErrAffiliateNotApproved    = errors.New("affiliate is not approved")
	ErrAffiliateExists         = errors.New("user already has an affiliate profile")
	ErrInvalidAffiliateState   = errors.New("affiliate status does not allow this operation")
	ErrInvalidRate             = errors.New("commission rate must be between 0 and 100")
	ErrBankAccountNotFound     = errors.New("bank account not found")
	ErrBankNotVerified         = errors.New("bank account is not verified")
	ErrBelowMinimum            = errors.New("payout amount is below the minimum")
	ErrInsufficientBalance     = errors.New("insufficient balance for this payout request")
	ErrPayoutNotFound          = errors.New("payout not found")
	ErrInvalidPayoutTransition = errors.New("payout cannot move to the requested status")
	ErrCommissionNotFound      = errors.New("commission not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidOrderState       = errors.New("order status does not allow this operation")
	ErrReferralNotFound        = errors.New("referral not found")
	ErrCouponNotFound          = errors.New("coupon not found")
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	ErrInvalidAmount           = errors.New("amount must be positive")

	// ErrTransient means the ledger gave up after retrying lock contention.
	ErrTransient = errors.New("ledger is busy, try again")
)

// CouponError explains why a coupon cannot be applied.
type CouponError struct {
	Reason string
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("coupon rejected: %s", e.Reason)
}

const (
	CouponReasonInactive      = "coupon is not active"
	CouponReasonNotYetValid   = "coupon is not yet valid"
	CouponReasonExpired       = "coupon has expired"
	CouponReasonLimitReached  = "coupon usage limit reached"
	CouponReasonMinimumAmount = "order amount is below the coupon minimum"
)
