package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func (h *Handler) ListAffiliates(c *fiber.Ctx) error {
	affiliates, err := h.Affiliates.List(c.UserContext(), c.Query("status"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(affiliates)
}

func (h *Handler) ApproveAffiliate(c *fiber.Ctx) error {
	id, err := uuidParam(c, "affiliateId")
	if err != nil {
		return respondError(c, err)
	}
	affiliate, err := h.Affiliates.Approve(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(affiliate)
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

func (h *Handler) RejectAffiliate(c *fiber.Ctx) error {
	id, err := uuidParam(c, "affiliateId")
	if err != nil {
		return respondError(c, err)
	}
	var req ReasonRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	affiliate, err := h.Affiliates.Reject(c.UserContext(), id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(affiliate)
}

func (h *Handler) SuspendAffiliate(c *fiber.Ctx) error {
	id, err := uuidParam(c, "affiliateId")
	if err != nil {
		return respondError(c, err)
	}
	var req ReasonRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	affiliate, err := h.Affiliates.Suspend(c.UserContext(), id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(affiliate)
}

type CommissionRateRequest struct {
	// Null clears the override.
	Rate *decimal.Decimal `json:"rate"`
}

func (h *Handler) SetAffiliateRate(c *fiber.Ctx) error {
	id, err := uuidParam(c, "affiliateId")
	if err != nil {
		return respondError(c, err)
	}
	var req CommissionRateRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	rate := decimal.NullDecimal{}
	if req.Rate != nil {
		rate = decimal.NewNullDecimal(*req.Rate)
	}
	affiliate, err := h.Affiliates.SetCustomRate(c.UserContext(), id, rate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(affiliate)
}

type VerifyBankAccountRequest struct {
	Decision string `json:"decision" validate:"required,oneof=verify reject"`
}

func (h *Handler) VerifyBankAccount(c *fiber.Ctx) error {
	id, err := uuidParam(c, "bankAccountId")
	if err != nil {
		return respondError(c, err)
	}
	var req VerifyBankAccountRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	account, err := h.Affiliates.VerifyBankAccount(c.UserContext(), id, req.Decision == "verify")
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(account)
}

func (h *Handler) ListPayouts(c *fiber.Ctx) error {
	payouts, err := h.Payouts.List(c.UserContext(), c.Query("status"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(payouts)
}

type ProcessingRequest struct {
	AdminNotes string `json:"admin_notes"`
}

func (h *Handler) MarkPayoutProcessing(c *fiber.Ctx) error {
	id, err := uuidParam(c, "payoutId")
	if err != nil {
		return respondError(c, err)
	}
	var req ProcessingRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}
	payout, err := h.Payouts.MarkProcessing(c.UserContext(), id, req.AdminNotes)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(payout)
}

type SettleRequest struct {
	TransferReference string `json:"transfer_reference" validate:"required,max=100"`
}

func (h *Handler) SettlePayout(c *fiber.Ctx) error {
	id, err := uuidParam(c, "payoutId")
	if err != nil {
		return respondError(c, err)
	}
	var req SettleRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	payout, err := h.Payouts.SettlePayout(c.UserContext(), id, req.TransferReference)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(payout)
}

func (h *Handler) RejectPayout(c *fiber.Ctx) error {
	id, err := uuidParam(c, "payoutId")
	if err != nil {
		return respondError(c, err)
	}
	var req ReasonRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	payout, err := h.Payouts.RejectPayout(c.UserContext(), id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(payout)
}

func (h *Handler) FailPayout(c *fiber.Ctx) error {
	id, err := uuidParam(c, "payoutId")
	if err != nil {
		return respondError(c, err)
	}
	var req ReasonRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	payout, err := h.Payouts.FailPayout(c.UserContext(), id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(payout)
}

// ExportPayouts downloads the payout queue as an Excel workbook for the
// finance team's bank transfer batch.
func (h *Handler) ExportPayouts(c *fiber.Ctx) error {
	payouts, err := h.Payouts.List(c.UserContext(), c.Query("status", models.PayoutStatusPending))
	if err != nil {
		return respondError(c, err)
	}

	f, err := payoutWorkbook(payouts)
	if err != nil {
		return err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("payouts_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", filename))
	return c.Send(buf.Bytes())
}

func payoutWorkbook(payouts []models.Payout) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := "Payouts"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headers := []string{"Payout ID", "Requested At", "Affiliate Code", "Affiliate Name", "Email", "Bank", "Account Number", "Account Holder", "Amount", "Status", "Transfer Reference"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	for i, p := range payouts {
		row := i + 2
		values := []interface{}{
			p.ID.String(),
			p.CreatedAt.Format("2006-01-02 15:04"),
			p.Affiliate.Code,
			p.Affiliate.User.FullName,
			p.Affiliate.User.Email,
			p.BankNameSnapshot,
			p.AccountNumberSnapshot,
			p.AccountHolderSnapshot,
			p.Amount.IntPart(),
			p.Status,
			p.TransferReference,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheetName, cell, v)
		}
	}
	return f, nil
}

func (h *Handler) VoidCommission(c *fiber.Ctx) error {
	id, err := uuidParam(c, "commissionId")
	if err != nil {
		return respondError(c, err)
	}
	var req ReasonRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	commission, err := h.Commissions.Void(c.UserContext(), id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(commission)
}

type AttributeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) AttributeOrder(c *fiber.Ctx) error {
	id, err := uuidParam(c, "orderId")
	if err != nil {
		return respondError(c, err)
	}
	var req AttributeRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}
	referral, err := h.Referrals.AttributeOrder(c.UserContext(), id, req.Code)
	if err != nil {
		return respondError(c, err)
	}
	if referral == nil {
		return c.JSON(fiber.Map{"attributed": false})
	}
	return c.JSON(fiber.Map{"attributed": true, "referral": referral})
}

func (h *Handler) CreateOrderCommission(c *fiber.Ctx) error {
	id, err := uuidParam(c, "orderId")
	if err != nil {
		return respondError(c, err)
	}
	commission, err := h.Commissions.CreateCommissionForOrder(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	if commission == nil {
		return c.JSON(fiber.Map{"created": false, "message": "Order has no referral."})
	}
	return c.JSON(fiber.Map{"created": true, "commission": commission})
}

type ApplyCouponRequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *Handler) ApplyCouponToOrder(c *fiber.Ctx) error {
	id, err := uuidParam(c, "orderId")
	if err != nil {
		return respondError(c, err)
	}
	var req ApplyCouponRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	order, err := h.Coupons.ApplyToOrder(c.UserContext(), id, req.Code)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

// RunMaturation triggers the maturation sweep. dry_run=true only reports.
func (h *Handler) RunMaturation(c *fiber.Ctx) error {
	days := h.Policy.HoldingPeriodDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "days must be a non-negative integer"})
		}
		days = parsed
	}
	report, err := h.Maturation.MatureDue(c.UserContext(), days, c.QueryBool("dry_run", false))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

func (h *Handler) RunReconciliation(c *fiber.Ctx) error {
	report, err := h.Maturation.ReconcileCancelled(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// RunAggregation rebuilds daily stats. It accepts date=YYYY-MM-DD or
// days=N, plus an optional affiliate code.
func (h *Handler) RunAggregation(c *fiber.Ctx) error {
	ctx := c.UserContext()

	if raw := c.Query("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "days must be a positive integer"})
		}
		rows, err := h.Stats.AggregateDays(ctx, days)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"rows": rows, "days": days})
	}

	date := time.Now().UTC().AddDate(0, 0, -1)
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid date format. Use YYYY-MM-DD."})
		}
		date = parsed
	}
	rows, err := h.Stats.AggregateDay(ctx, date, c.Query("affiliate"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"rows": rows, "date": date.Format("2006-01-02")})
}
