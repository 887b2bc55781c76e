//go:build !ocr

package barcode

// Available reports whether Scan can read images in this build.
const Available = false

func (s *Scanner) recognize([]byte) (string, error) {
	return "", ErrUnavailable
}
