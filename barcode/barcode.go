// Package barcode extracts retail barcodes (EAN-8, UPC-A, EAN-13, GTIN-14)
// from OCR text and validates their check digits.
package barcode

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrUnavailable is returned by the scanner when the binary was built
// without OCR support.
var ErrUnavailable = errors.New("barcode: OCR support not compiled in")

var digitRun = regexp.MustCompile(`\d[\d \-]{6,20}\d`)

// Extract returns the first valid barcode found in text, or "".
func Extract(text string) string {
	for _, run := range digitRun.FindAllString(text, -1) {
		code := strings.NewReplacer(" ", "", "-", "").Replace(run)
		if Valid(code) {
			return code
		}
	}
	return ""
}

// Valid reports whether code is an 8, 12, 13 or 14 digit GTIN with a
// correct check digit.
func Valid(code string) bool {
	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return false
	}
	sum := 0
	for i := len(code) - 2; i >= 0; i-- {
		c := code[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		// Weights alternate 3,1 starting from the digit left of the check digit.
		if (len(code)-2-i)%2 == 0 {
			d *= 3
		}
		sum += d
	}
	last := code[len(code)-1]
	if last < '0' || last > '9' {
		return false
	}
	return (10-sum%10)%10 == int(last-'0')
}

// Scanner reads barcodes from images with an OCR engine.
type Scanner struct {
	languages []string
}

func NewScanner(languages ...string) *Scanner {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Scanner{languages: languages}
}

// Scan returns the barcode printed under the bars, "" when none is legible.
func (s *Scanner) Scan(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := s.recognize(img)
	if err != nil {
		return "", err
	}
	return Extract(text), nil
}
