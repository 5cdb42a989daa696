package handlers

import (
	"errors"
	"log"
	"net/url"
	"strings"

	"github.com/anjiri1684/affiliate_ledger/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RedirectReferralLink records the click and sends the visitor to the shop
// with the referral code attached. Unknown codes land on the home page.
func (h *Handler) RedirectReferralLink(c *fiber.Ctx) error {
	code := c.Params("code")
	page := strings.Trim(c.Query("page"), "/")

	affiliate, _, err := h.Clicks.Track(c.UserContext(), services.ClickInput{
		Code:        code,
		IPAddress:   c.IP(),
		UserAgent:   c.Get(fiber.HeaderUserAgent),
		RefererURL:  c.Get(fiber.HeaderReferer),
		LandingPage: page,
	})
	if err != nil {
		if !errors.Is(err, services.ErrAffiliateNotFound) {
			log.Printf("🔥 Failed to track click for %s: %v", code, err)
		}
		return c.Redirect(h.FrontendURL, fiber.StatusFound)
	}

	target := h.FrontendURL
	if page != "" {
		target += "/" + page
	}
	return c.Redirect(target+"?ref="+url.QueryEscape(affiliate.Code), fiber.StatusFound)
}

type TrackClickRequest struct {
	Code        string `json:"code" validate:"required"`
	LandingPage string `json:"landing_page"`
	RefererURL  string `json:"referer_url"`
}

// TrackClick is the JSON variant used by single page frontends.
func (h *Handler) TrackClick(c *fiber.Ctx) error {
	var req TrackClickRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	referer := req.RefererURL
	if referer == "" {
		referer = c.Get(fiber.HeaderReferer)
	}
	affiliate, recorded, err := h.Clicks.Track(c.UserContext(), services.ClickInput{
		Code:        req.Code,
		IPAddress:   c.IP(),
		UserAgent:   c.Get(fiber.HeaderUserAgent),
		RefererURL:  referer,
		LandingPage: req.LandingPage,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"code": affiliate.Code, "recorded": recorded})
}

type ValidateCouponRequest struct {
	Code        string          `json:"code" validate:"required"`
	OrderAmount decimal.Decimal `json:"order_amount"`
}

func (h *Handler) ValidateCoupon(c *fiber.Ctx) error {
	var req ValidateCouponRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	result, err := h.Coupons.ValidateCode(c.UserContext(), req.Code, req.OrderAmount)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

type OrderWebhookRequest struct {
	OrderID        uuid.UUID `json:"order_id" validate:"required"`
	Event          string    `json:"event" validate:"required,oneof=paid failed expired cancelled refunded"`
	PaymentMethod  string    `json:"payment_method"`
	IsInternalTest *bool     `json:"is_internal_test"`
	ReferralCode   string    `json:"referral_code"`
	CouponCode     string    `json:"coupon_code"`
}

// OrderWebhook receives payment and lifecycle events from the order source.
func (h *Handler) OrderWebhook(c *fiber.Ctx) error {
	var req OrderWebhookRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	outcome, err := h.Orders.HandleOrderEvent(c.UserContext(), services.OrderEvent{
		OrderID:        req.OrderID,
		Event:          req.Event,
		PaymentMethod:  req.PaymentMethod,
		IsInternalTest: req.IsInternalTest,
		ReferralCode:   req.ReferralCode,
		CouponCode:     req.CouponCode,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "received", "result": outcome})
}

func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
