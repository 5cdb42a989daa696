package utils

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// ReferralQRCode renders link as a PNG QR code.
func ReferralQRCode(link string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return png, nil
}
