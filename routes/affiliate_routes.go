package routes

import (
	"github.com/anjiri1684/affiliate_ledger/handlers"
	"github.com/anjiri1684/affiliate_ledger/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func AffiliateRoutes(app *fiber.App, h *handlers.Handler, jwtSecret string) {
	api := app.Group("/api/v1")

	// Any signed-in user may apply and follow their application.
	profile := api.Group("/affiliate", middleware.Protected(jwtSecret))
	profile.Post("/apply", h.ApplyAsAffiliate)
	profile.Get("/me", h.GetMyAffiliate)
	profile.Get("/bank-accounts", h.ListBankAccounts)
	profile.Post("/bank-accounts", h.AddBankAccount)
	profile.Put("/bank-accounts/:bankAccountId/primary", h.SetPrimaryBankAccount)
	profile.Get("/uploads/ktp-signature", h.GenerateKTPUploadSignature)

	affiliate := api.Group("/affiliate", middleware.Protected(jwtSecret), middleware.AffiliateRequired())
	affiliate.Get("/balance", h.GetMyBalance)
	affiliate.Get("/commissions", h.ListMyCommissions)
	affiliate.Get("/referrals", h.ListMyReferrals)
	affiliate.Get("/stats", h.GetMyStats)
	affiliate.Get("/qrcode", h.GetMyQRCode)
	affiliate.Get("/coupons", h.ListMyCoupons)
	affiliate.Post("/coupons", h.CreateCoupon)
	affiliate.Get("/payouts", h.ListMyPayouts)
	affiliate.Post("/payouts", h.RequestPayout)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws", websocket.New(h.ServeWs))
}
