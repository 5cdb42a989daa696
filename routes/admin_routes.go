package routes

import (
	"github.com/anjiri1684/affiliate_ledger/handlers"
	"github.com/anjiri1684/affiliate_ledger/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App, h *handlers.Handler, jwtSecret string) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(jwtSecret), middleware.AdminRequired())

	affiliates := admin.Group("/affiliates")
	affiliates.Get("", h.ListAffiliates)
	affiliates.Post("/:affiliateId/approve", h.ApproveAffiliate)
	affiliates.Post("/:affiliateId/reject", h.RejectAffiliate)
	affiliates.Post("/:affiliateId/suspend", h.SuspendAffiliate)
	affiliates.Put("/:affiliateId/rate", h.SetAffiliateRate)

	admin.Post("/bank-accounts/:bankAccountId/verify", h.VerifyBankAccount)

	payouts := admin.Group("/payouts")
	payouts.Get("", h.ListPayouts)
	payouts.Get("/export", h.ExportPayouts)
	payouts.Post("/:payoutId/processing", h.MarkPayoutProcessing)
	payouts.Post("/:payoutId/settle", h.SettlePayout)
	payouts.Post("/:payoutId/reject", h.RejectPayout)
	payouts.Post("/:payoutId/fail", h.FailPayout)

	admin.Post("/commissions/:commissionId/void", h.VoidCommission)

	orders := admin.Group("/orders")
	orders.Post("/:orderId/attribute", h.AttributeOrder)
	orders.Post("/:orderId/commission", h.CreateOrderCommission)

	jobs := admin.Group("/jobs")
	jobs.Post("/mature", h.RunMaturation)
	jobs.Post("/reconcile", h.RunReconciliation)
	jobs.Post("/aggregate", h.RunAggregation)
}
