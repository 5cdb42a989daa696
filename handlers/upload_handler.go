package handlers

import (
	"net/url"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gofiber/fiber/v2"
)

const ktpUploadFolder = "affiliate_ktp"

// GenerateKTPUploadSignature signs a direct browser upload of the
// affiliate's identity card into the KTP folder.
func (h *Handler) GenerateKTPUploadSignature(c *fiber.Ctx) error {
	affiliate, err := h.currentAffiliate(c)
	if err != nil {
		return respondError(c, err)
	}

	cld, err := cloudinary.NewFromURL(h.CloudinaryURL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to initialize Cloudinary"})
	}

	parsedURL, err := url.Parse(h.CloudinaryURL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to parse Cloudinary URL"})
	}
	secret, _ := parsedURL.User.Password()

	publicID := "ktp_" + affiliate.ID.String()
	paramsToSign, err := api.StructToParams(uploader.UploadParams{
		Folder:   ktpUploadFolder,
		PublicID: publicID,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to prepare signature params"})
	}

	timestamp := time.Now().Unix()
	paramsToSign.Set("timestamp", strconv.FormatInt(timestamp, 10))

	signature, err := api.SignParameters(paramsToSign, secret)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to sign upload params"})
	}

	return c.JSON(fiber.Map{
		"signature":  signature,
		"timestamp":  timestamp,
		"api_key":    cld.Config.Cloud.APIKey,
		"cloud_name": cld.Config.Cloud.CloudName,
		"folder":     ktpUploadFolder,
		"public_id":  publicID,
	})
}
