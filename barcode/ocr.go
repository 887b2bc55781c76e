//go:build ocr

package barcode

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

const Available = true

func (s *Scanner) recognize(img []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(s.languages...); err != nil {
		return "", fmt.Errorf("set OCR language: %w", err)
	}
	if err := client.SetWhitelist("0123456789 -"); err != nil {
		return "", fmt.Errorf("set OCR whitelist: %w", err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("load image for OCR: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return text, nil
}
