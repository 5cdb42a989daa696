package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	config "github.com/anjiri1684/affiliate_ledger/configs"
	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/anjiri1684/affiliate_ledger/services"
	"gorm.io/gorm"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

type BrevoService struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	Endpoint    string
	client      *http.Client
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

// NewBrevoService returns nil when the e-mail settings are incomplete.
func NewBrevoService(cfg config.EmailConfig) *BrevoService {
	if cfg.BrevoAPIKey == "" || cfg.SenderEmail == "" || cfg.SenderName == "" {
		log.Println("⚠️ Email service not configured. Missing API Key, Sender Email, or Sender Name.")
		return nil
	}
	log.Println("✅ Email service initialized successfully.")
	return &BrevoService{
		APIKey:      cfg.BrevoAPIKey,
		SenderEmail: cfg.SenderEmail,
		SenderName:  cfg.SenderName,
		Endpoint:    brevoEndpoint,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *BrevoService) Send(ctx context.Context, toEmail, toName, subject, htmlContent string) error {
	if toEmail == "" || !strings.Contains(toEmail, "@") {
		return fmt.Errorf("invalid recipient email: %s", toEmail)
	}

	recipientName := toName
	if recipientName == "" {
		recipientName = toEmail[:strings.Index(toEmail, "@")]
	}

	payload := brevoPayload{
		Sender:      map[string]string{"name": s.SenderName, "email": s.SenderEmail},
		To:          []map[string]string{{"email": toEmail, "name": recipientName}},
		Subject:     subject,
		HTMLContent: htmlContent,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.APIKey)
	req.Header.Set("content-type", "application/json")

	client := s.client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to send email via Brevo: status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// EmailNotifier mails the affiliate about events that concern their money or
// their application.
type EmailNotifier struct {
	brevo *BrevoService
	db    *gorm.DB
}

func NewEmailNotifier(brevo *BrevoService, db *gorm.DB) *EmailNotifier {
	return &EmailNotifier{brevo: brevo, db: db}
}

func (n *EmailNotifier) Publish(ctx context.Context, e services.Event) error {
	subject, html, ok := renderEmail(e)
	if !ok {
		return nil
	}

	var affiliate models.Affiliate
	if err := n.db.WithContext(ctx).Preload("User").First(&affiliate, "id = ?", e.AffiliateID).Error; err != nil {
		return fmt.Errorf("failed to load affiliate %s: %w", e.AffiliateID, err)
	}

	if err := n.brevo.Send(ctx, affiliate.User.Email, affiliate.User.FullName, subject, html); err != nil {
		return err
	}
	log.Printf("✅ Email sent successfully to %s", affiliate.User.Email)
	return nil
}

func renderEmail(e services.Event) (string, string, bool) {
	amount := "Rp " + e.Amount.StringFixed(0)
	switch e.Type {
	case services.EventAffiliateApproved:
		return "Your affiliate application is approved",
			fmt.Sprintf("<h1>Welcome aboard!</h1><p>Your affiliate code is <b>%s</b>. Share your link to start earning.</p>", e.Reference), true
	case services.EventAffiliateRejected:
		return "Your affiliate application",
			"<p>Unfortunately your affiliate application was not approved.</p>", true
	case services.EventCommissionCreated:
		return "You earned a new commission",
			fmt.Sprintf("<h1>Congratulations!</h1><p>Order %s earned you a commission of %s. It becomes withdrawable after the holding period.</p>", e.Reference, amount), true
	case services.EventPayoutRequested:
		return "Payout request received",
			fmt.Sprintf("<p>We received your payout request of %s and will process it shortly.</p>", amount), true
	case services.EventPayoutSettled:
		return "Your payout has been sent",
			fmt.Sprintf("<p>Your payout of %s has been transferred. Reference: %s.</p>", amount, e.Reference), true
	case services.EventPayoutRejected, services.EventPayoutFailed:
		return "Your payout could not be completed",
			fmt.Sprintf("<p>Your payout of %s could not be completed. The amount is back in your balance.</p>", amount), true
	}
	return "", "", false
}
