package utils

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/anjiri1684/affiliate_ledger/models"
	"gorm.io/gorm"
)

const affiliateCodeLength = 7
const letterBytes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const maxCodeAttempts = 20

// RandomCode returns n characters from letterBytes. Codes are upper-case so
// lookups can normalize user input.
func RandomCode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}

func GenerateUniqueAffiliateCode(tx *gorm.DB) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := RandomCode(affiliateCodeLength)

		var affiliate models.Affiliate
		err := tx.Select("id").Where("code = ?", code).First(&affiliate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("could not generate a unique affiliate code after %d attempts", maxCodeAttempts)
}

