package handlers

import (
	"errors"

	config "github.com/anjiri1684/affiliate_ledger/configs"
	"github.com/anjiri1684/affiliate_ledger/jobs"
	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/anjiri1684/affiliate_ledger/services"
	"github.com/anjiri1684/affiliate_ledger/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var validate = validator.New()

// Handler carries the services the HTTP layer talks to.
type Handler struct {
	Affiliates  *services.AffiliateService
	Referrals   *services.ReferralService
	Commissions *services.CommissionService
	Payouts     *services.PayoutService
	Coupons     *services.CouponService
	Orders      *services.OrderService
	Clicks      *services.ClickService
	Maturation  *jobs.MaturationJob
	Stats       *jobs.DailyStatsJob
	Hub         *websocket.Hub

	Policy        config.LedgerPolicy
	JWTSecret     string
	FrontendURL   string
	CloudinaryURL string
}

func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	raw, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid user ID in token")
	}
	return userID, nil
}

// currentAffiliate resolves the affiliate profile of the calling user.
func (h *Handler) currentAffiliate(c *fiber.Ctx) (*models.Affiliate, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return nil, err
	}
	return h.Affiliates.GetByUser(c.UserContext(), userID)
}

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot parse JSON")
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// respondError maps ledger errors to HTTP statuses. Anything unknown goes to
// the app's error handler as a 500.
func respondError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}

	var couponErr *services.CouponError
	if errors.As(err, &couponErr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": couponErr.Reason})
	}

	status := 0
	switch {
	case errors.Is(err, services.ErrAffiliateNotFound),
		errors.Is(err, services.ErrBankAccountNotFound),
		errors.Is(err, services.ErrPayoutNotFound),
		errors.Is(err, services.ErrCommissionNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrReferralNotFound),
		errors.Is(err, services.ErrCouponNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrAffiliateNotApproved),
		errors.Is(err, services.ErrBankNotVerified):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrBelowMinimum),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidRate):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrInsufficientBalance):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrInvalidPayoutTransition),
		errors.Is(err, services.ErrAffiliateExists),
		errors.Is(err, services.ErrInvalidAffiliateState),
		errors.Is(err, services.ErrInvalidOrderState),
		errors.Is(err, services.ErrCouponUsageLimitReached):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrTransient):
		status = fiber.StatusServiceUnavailable
	}
	if status == 0 {
		return err
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
