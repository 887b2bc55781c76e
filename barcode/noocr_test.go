//go:build !ocr

package barcode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanner_WithoutOCR(t *testing.T) {
	assert.False(t, Available)

	code, err := NewScanner().Scan(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, code)
}
