package handlers

import (
	"strconv"
	"time"

	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/anjiri1684/affiliate_ledger/services"
	"github.com/anjiri1684/affiliate_ledger/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AffiliateApplicationRequest struct {
	WhatsApp        string `json:"whatsapp" validate:"required,max=20"`
	City            string `json:"city" validate:"required,max=100"`
	PrimaryPlatform string `json:"primary_platform" validate:"required,oneof=instagram tiktok youtube facebook twitter website other"`
	Reason          string `json:"reason" validate:"required"`
}

func (h *Handler) ApplyAsAffiliate(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req AffiliateApplicationRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	affiliate, err := h.Affiliates.Apply(c.UserContext(), userID, services.ApplyInput{
		WhatsApp:        req.WhatsApp,
		City:            req.City,
		PrimaryPlatform: req.PrimaryPlatform,
		Reason:          req.Reason,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(affiliate)
}

func (h *Handler) GetMyAffiliate(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"affiliate":    affiliate,
		"referral_url": affiliate.ReferralURL(h.FrontendURL),
	})
}

func (h *Handler) GetMyBalance(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}
	summary, err := h.Commissions.GetSummary(c.UserContext(), affiliate.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"summary":            summary,
		"min_payout_amount":  h.Policy.MinPayoutAmount,
		"holding_period_days": h.Policy.HoldingPeriodDays,
	})
}

func (h *Handler) ListMyCommissions(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	commissions, err := h.Commissions.ListForAffiliate(c.UserContext(), affiliate.ID, services.CommissionFilter{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(commissions)
}

func (h *Handler) ListMyReferrals(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}
	referrals, err := h.Referrals.ListForAffiliate(c.UserContext(), affiliate.ID, c.Query("status"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(referrals)
}

// GetMyStats returns the daily snapshots for a date range, the last 30 days
// by default.
func (h *Handler) GetMyStats(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}

	now := time.Now().UTC()
	from, err := time.Parse("2006-01-02", c.Query("from", now.AddDate(0, 0, -30).Format("2006-01-02")))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid from format. Use YYYY-MM-DD."})
	}
	to, err := time.Parse("2006-01-02", c.Query("to", now.Format("2006-01-02")))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid to format. Use YYYY-MM-DD."})
	}

	stats, err := h.Stats.StatsForPeriod(c.UserContext(), affiliate.ID, from, to)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(stats)
}

func (h *Handler) GetMyQRCode(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}
	size, _ := strconv.Atoi(c.Query("size", "256"))
	if size < 64 || size > 1024 {
		size = 256
	}

	png, err := utils.ReferralQRCode(affiliate.ReferralURL(h.FrontendURL), size)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

type BankAccountRequest struct {
	BankName      string  `json:"bank_name" validate:"required,max=100"`
	AccountNumber string  `json:"account_number" validate:"required,numeric,min=5,max=50"`
	AccountHolder string  `json:"account_holder" validate:"required,max=200"`
	KTPImageURL   *string `json:"ktp_image_url" validate:"omitempty,url"`
}

func (h *Handler) AddBankAccount(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}
	var req BankAccountRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	account, err := h.Affiliates.AddBankAccount(c.UserContext(), affiliate.ID, services.BankAccountInput{
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		AccountHolder: req.AccountHolder,
		KTPImageURL:   req.KTPImageURL,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(account)
}

func (h *Handler) ListBankAccounts(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}
	accounts, err := h.Affiliates.ListBankAccounts(c.UserContext(), affiliate.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(accounts)
}

func (h *Handler) SetPrimaryBankAccount(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}
	bankID, err := uuidParam(c, "bankAccountId")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Affiliates.SetPrimaryBankAccount(c.UserContext(), affiliate.ID, bankID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Primary bank account updated."})
}

type CouponRequest struct {
	Code           string           `json:"code" validate:"required,alphanum,min=4,max=50"`
	DiscountType   string           `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue  decimal.Decimal  `json:"discount_value"`
	ValidFrom      time.Time        `json:"valid_from" validate:"required"`
	ValidUntil     time.Time        `json:"valid_until" validate:"required"`
	UsageLimit     *int             `json:"usage_limit" validate:"omitempty,min=1"`
	MinOrderAmount *decimal.Decimal `json:"min_order_amount"`
}

func (h *Handler) CreateCoupon(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}
	var req CouponRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	in := services.CreateCouponInput{
		Code:          req.Code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
		UsageLimit:    req.UsageLimit,
	}
	if req.MinOrderAmount != nil {
		in.MinOrderAmount = decimal.NewNullDecimal(*req.MinOrderAmount)
	}

	coupon, err := h.Coupons.Create(c.UserContext(), affiliate.ID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(coupon)
}

func (h *Handler) ListMyCoupons(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}
	coupons, err := h.Coupons.ListForAffiliate(c.UserContext(), affiliate.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(coupons)
}

type PayoutRequest struct {
	BankAccountID uuid.UUID       `json:"bank_account_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
}

func (h *Handler) RequestPayout(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}
	var req PayoutRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if !req.Amount.IsPositive() {
		return respondError(c, services.ErrInvalidAmount)
	}

	payout, err := h.Payouts.RequestPayout(c.UserContext(), affiliate.ID, req.BankAccountID, req.Amount)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Payout request submitted successfully.",
		"payout":  payout,
	})
}

func (h *Handler) ListMyPayouts(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}
	payouts, err := h.Payouts.ListForAffiliate(c.UserContext(), affiliate.ID)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]fiber.Map, 0, len(payouts))
	for _, p := range payouts {
		out = append(out, payoutView(p))
	}
	return c.JSON(out)
}

// payoutView hides the full account number.
func payoutView(p models.Payout) fiber.Map {
	return fiber.Map{
		"id":                 p.ID,
		"amount":             p.Amount,
		"status":             p.Status,
		"bank_name":          p.BankNameSnapshot,
		"account_number":     (&models.BankAccount{AccountNumber: p.AccountNumberSnapshot}).MaskedNumber(),
		"account_holder":     p.AccountHolderSnapshot,
		"rejection_reason":   p.RejectionReason,
		"transfer_reference": p.TransferReference,
		"receipt_url":        p.ReceiptURL,
		"processed_at":       p.ProcessedAt,
		"created_at":         p.CreatedAt,
	}
}
