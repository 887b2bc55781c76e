package orchestrator

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	"mealwise"
)

// checkImage rejects payloads that are not a readable image. WebP has no
// decoder in the standard library and is accepted on its signature alone.
func checkImage(img []byte) error {
	if len(img) == 0 {
		return mealwise.NewDecodeError("image.decode", "empty image", nil)
	}
	_, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err == nil {
		return nil
	}
	if http.DetectContentType(img) == "image/webp" {
		return nil
	}
	return mealwise.NewDecodeError("image.decode", "could not decode image", err)
}
