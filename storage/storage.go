// Package storage holds the meal/feedback stores and the blob archives used
// for meal images and pipeline traces.
package storage

import (
	"fmt"
	"strings"

	"mealwise"
)

var (
	_ mealwise.MealStore = (*MemoryStore)(nil)
	_ mealwise.MealStore = (*SQLiteStore)(nil)

	_ mealwise.Archive = (*MemoryArchive)(nil)
	_ mealwise.Archive = (*FileArchive)(nil)
	_ mealwise.Archive = (*S3Archive)(nil)
	_ mealwise.Archive = (*AzureArchive)(nil)
)

func validateFeedback(fb mealwise.Feedback) error {
	if fb.MealID == "" {
		return mealwise.NewDecodeError("storage.feedback", "meal id is required", nil)
	}
	if !fb.Type.Valid() {
		return mealwise.NewDecodeError("storage.feedback", fmt.Sprintf("unknown feedback type %q", fb.Type), nil)
	}
	return nil
}

// cleanKey rejects keys that could escape an archive root.
func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("empty archive key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return "", fmt.Errorf("invalid archive key %q", key)
		}
	}
	return key, nil
}

func notFound(op, key string) error {
	return mealwise.NewNotFoundError(op, fmt.Sprintf("%s not found", key))
}
