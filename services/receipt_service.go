package services

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"time"

	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

//go:embed templates/payout_receipt.html
var receiptTemplates embed.FS

var receiptTemplate = template.Must(template.ParseFS(receiptTemplates, "templates/payout_receipt.html"))

// PDFRenderer turns an HTML document into PDF bytes.
type PDFRenderer func(ctx context.Context, html string) ([]byte, error)

// FileUploader stores a file and returns its public URL.
type FileUploader func(ctx context.Context, data []byte, publicID string) (string, error)

// ReceiptService renders a PDF receipt for every settled payout and stores
// its URL on the payout.
type ReceiptService struct {
	db     *gorm.DB
	render PDFRenderer
	upload FileUploader
}

func NewReceiptService(db *gorm.DB, render PDFRenderer, upload FileUploader) *ReceiptService {
	return &ReceiptService{db: db, render: render, upload: upload}
}

func (s *ReceiptService) Publish(ctx context.Context, e Event) error {
	if e.Type != EventPayoutSettled || e.PayoutID == nil {
		return nil
	}

	var payout models.Payout
	if err := s.db.WithContext(ctx).Preload("Affiliate.User").First(&payout, "id = ?", *e.PayoutID).Error; err != nil {
		return fmt.Errorf("failed to load payout %s: %w", *e.PayoutID, err)
	}

	html, err := RenderReceiptHTML(&payout)
	if err != nil {
		return fmt.Errorf("failed to render receipt HTML: %w", err)
	}
	pdf, err := s.render(ctx, html)
	if err != nil {
		return fmt.Errorf("failed to generate PDF: %w", err)
	}
	url, err := s.upload(ctx, pdf, fmt.Sprintf("receipts/%s_%s", payout.AffiliateID, payout.ID))
	if err != nil {
		return fmt.Errorf("failed to upload receipt: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Payout{}).Where("id = ?", payout.ID).
		Update("receipt_url", url).Error; err != nil {
		return fmt.Errorf("failed to store receipt url: %w", err)
	}
	log.Printf("✅ Receipt for payout %s uploaded to %s", payout.ID, url)
	return nil
}

func RenderReceiptHTML(p *models.Payout) (string, error) {
	transferDate := ""
	if p.TransferDate != nil {
		transferDate = p.TransferDate.Format("January 2, 2006")
	}
	data := struct {
		PayoutID      string
		AffiliateName string
		AffiliateCode string
		Amount        string
		BankName      string
		AccountNumber string
		AccountHolder string
		Reference     string
		TransferDate  string
	}{
		PayoutID:      p.ID.String(),
		AffiliateName: p.Affiliate.User.FullName,
		AffiliateCode: p.Affiliate.Code,
		Amount:        p.Amount.StringFixed(0),
		BankName:      p.BankNameSnapshot,
		AccountNumber: (&models.BankAccount{AccountNumber: p.AccountNumberSnapshot}).MaskedNumber(),
		AccountHolder: p.AccountHolderSnapshot,
		Reference:     p.TransferReference,
		TransferDate:  transferDate,
	}

	var rendered bytes.Buffer
	if err := receiptTemplate.Execute(&rendered, data); err != nil {
		return "", err
	}
	return rendered.String(), nil
}

// ChromePDF prints HTML with a headless Chrome.
func ChromePDF(ctx context.Context, htmlContent string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var pdfBuffer []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuffer, nil
}

// CloudinaryUploader uploads raw files into the receipts folder.
func CloudinaryUploader(cld *cloudinary.Cloudinary) FileUploader {
	return func(ctx context.Context, data []byte, publicID string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		result, err := cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
			PublicID:     publicID + "_" + uuid.New().String()[:8],
			Folder:       "affiliate_payout_receipts",
			ResourceType: "raw",
		})
		if err != nil {
			return "", err
		}
		return result.SecureURL, nil
	}
}
