package routes

import (
	"github.com/anjiri1684/affiliate_ledger/handlers"
	"github.com/anjiri1684/affiliate_ledger/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func PublicRoutes(app *fiber.App, h *handlers.Handler, callbackToken string) {
	app.Get("/health", handlers.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")
	api.Get("/health", handlers.Health)
	api.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api.Get("/r/:code", h.RedirectReferralLink)
	api.Post("/track", h.TrackClick)
	api.Post("/coupons/validate", h.ValidateCoupon)

	orderSource := middleware.CallbackToken(callbackToken)
	api.Post("/webhooks/orders", orderSource, h.OrderWebhook)
	api.Post("/orders/:orderId/coupon", orderSource, h.ApplyCouponToOrder)
}
