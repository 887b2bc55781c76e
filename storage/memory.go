package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"mealwise"

	"github.com/google/uuid"
)

// MemoryStore is an in-process MealStore for tests and the CLI.
type MemoryStore struct {
	mu       sync.RWMutex
	meals    []mealwise.Meal
	feedback []mealwise.Feedback
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) SaveMeal(ctx context.Context, meal mealwise.Meal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if meal.ID == "" {
		meal.ID = uuid.NewString()
	}
	if meal.CreatedAt.IsZero() {
		meal.CreatedAt = s.now()
	}
	meal.Foods = slices.Clone(meal.Foods)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.meals = append(s.meals, meal)
	return meal.ID, nil
}

// LoadRecentMeals returns the user's meals created at or after since, oldest first.
func (s *MemoryStore) LoadRecentMeals(ctx context.Context, userID string, since time.Time) ([]mealwise.Meal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []mealwise.Meal
	for _, m := range s.meals {
		if m.UserID == userID && !m.CreatedAt.Before(since) {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b mealwise.Meal) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SaveFeedback(ctx context.Context, fb mealwise.Feedback) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateFeedback(fb); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.meals, func(m mealwise.Meal) bool { return m.ID == fb.MealID })
	if idx < 0 {
		return "", notFound("storage.feedback", "meal "+fb.MealID)
	}
	if fb.UserID == "" {
		fb.UserID = s.meals[idx].UserID
	}
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = s.now()
	}
	s.feedback = append(s.feedback, fb)
	return fb.ID, nil
}

func (s *MemoryStore) LoadFeedback(ctx context.Context, userID string, since time.Time) ([]mealwise.Feedback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []mealwise.Feedback
	for _, fb := range s.feedback {
		if fb.UserID == userID && !fb.CreatedAt.Before(since) {
			out = append(out, fb)
		}
	}
	return out, nil
}

// MemoryArchive keeps blobs in a map.
type MemoryArchive struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	types map[string]string
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{blobs: map[string][]byte{}, types: map[string]string{}}
}

func (a *MemoryArchive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blobs[key] = slices.Clone(data)
	a.types[key] = contentType
	return nil
}

func (a *MemoryArchive) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.blobs[key]
	if !ok {
		return nil, notFound("storage.archive", key)
	}
	return slices.Clone(data), nil
}

// Keys lists stored keys in lexical order.
func (a *MemoryArchive) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	keys := make([]string, 0, len(a.blobs))
	for k := range a.blobs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
