package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mealwise"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMeal(user string, at time.Time) mealwise.Meal {
	return mealwise.Meal{
		UserID:    user,
		CreatedAt: at,
		Context:   mealwise.ContextHomemade,
		Note:      "after run",
		EnergyTag: mealwise.EnergyHigh,
		Foods: []mealwise.FoodItem{
			{Name: "rice", Portion: "1 cup", Confidence: mealwise.ConfidenceHigh},
			{Name: "chicken", Portion: "150g", Confidence: mealwise.ConfidenceMedium},
		},
		Nutrition: mealwise.NutritionEstimate{
			Calories: mealwise.Range{Min: 400, Max: 550},
			Macros: mealwise.Macros{
				Protein: mealwise.Range{Min: 30, Max: 40},
			},
			Source: mealwise.SourcePrimary,
		},
		BalanceStatus: mealwise.BalanceRoughlyAligned,
		Wellness: mealwise.WellnessOutput{
			Message:     "Nice balanced plate.",
			Suggestions: []string{"Add some greens"},
			Emoji:       "🟢",
		},
		Confidence: 0.72,
	}
}

// stores returns each MealStore implementation, fresh for every call.
func stores(t *testing.T) map[string]mealwise.MealStore {
	t.Helper()
	sqlite, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "meals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]mealwise.MealStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestMealStore(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			oldID, err := store.SaveMeal(ctx, sampleMeal("u1", base.AddDate(0, 0, -20)))
			require.NoError(t, err)
			require.NotEmpty(t, oldID)

			laterID, err := store.SaveMeal(ctx, sampleMeal("u1", base.Add(2*time.Hour)))
			require.NoError(t, err)
			earlierID, err := store.SaveMeal(ctx, sampleMeal("u1", base))
			require.NoError(t, err)
			_, err = store.SaveMeal(ctx, sampleMeal("u2", base))
			require.NoError(t, err)

			meals, err := store.LoadRecentMeals(ctx, "u1", base.AddDate(0, 0, -7))
			require.NoError(t, err)
			require.Len(t, meals, 2)

			assert.Equal(t, earlierID, meals[0].ID, "meals are returned oldest first")
			assert.Equal(t, laterID, meals[1].ID)

			got := meals[0]
			assert.Equal(t, base.UnixMilli(), got.CreatedAt.UnixMilli())
			assert.Equal(t, mealwise.ContextHomemade, got.Context)
			assert.Equal(t, mealwise.EnergyHigh, got.EnergyTag)
			assert.Equal(t, "after run", got.Note)
			assert.Equal(t, mealwise.BalanceRoughlyAligned, got.BalanceStatus)
			assert.InDelta(t, 0.72, got.Confidence, 1e-9)
			require.Len(t, got.Foods, 2)
			assert.Equal(t, "rice", got.Foods[0].Name, "food order is preserved")
			assert.Equal(t, mealwise.ConfidenceMedium, got.Foods[1].Confidence)
			assert.Equal(t, mealwise.Range{Min: 400, Max: 550}, got.Nutrition.Calories)
			assert.Equal(t, "Nice balanced plate.", got.Wellness.Message)

			empty, err := store.LoadRecentMeals(ctx, "nobody", time.Time{})
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestMealStoreFeedback(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mealID, err := store.SaveMeal(ctx, sampleMeal("u1", at))
			require.NoError(t, err)

			tests := []struct {
				name     string
				fb       mealwise.Feedback
				wantKind mealwise.ErrorKind
			}{
				{
					name: "accurate",
					fb:   mealwise.Feedback{MealID: mealID, Type: mealwise.FeedbackAccurate, CreatedAt: at},
				},
				{
					name: "with comment",
					fb:   mealwise.Feedback{MealID: mealID, Type: mealwise.FeedbackPortionBigger, Comment: "double rice", CreatedAt: at.Add(time.Minute)},
				},
				{
					name:     "unknown meal",
					fb:       mealwise.Feedback{MealID: "missing", Type: mealwise.FeedbackAccurate},
					wantKind: mealwise.ErrNotFound,
				},
				{
					name:     "unknown type",
					fb:       mealwise.Feedback{MealID: mealID, Type: "delicious"},
					wantKind: mealwise.ErrDecode,
				},
				{
					name:     "no meal id",
					fb:       mealwise.Feedback{Type: mealwise.FeedbackWrongFood},
					wantKind: mealwise.ErrDecode,
				},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					id, err := store.SaveFeedback(ctx, tt.fb)
					if tt.wantKind != "" {
						require.Error(t, err)
						assert.True(t, mealwise.IsKind(err, tt.wantKind), "got %v", err)
						return
					}
					require.NoError(t, err)
					assert.NotEmpty(t, id)
				})
			}

			fbs, err := store.LoadFeedback(ctx, "u1", at.Add(-time.Hour))
			require.NoError(t, err)
			require.Len(t, fbs, 2)
			assert.Equal(t, "u1", fbs[0].UserID, "user is taken from the meal")
			assert.Equal(t, mealID, fbs[1].MealID)
			assert.Equal(t, "double rice", fbs[1].Comment)
		})
	}
}

func TestArchives(t *testing.T) {
	archives := map[string]mealwise.Archive{
		"memory": NewMemoryArchive(),
		"file":   NewFileArchive(t.TempDir()),
		"s3":     NewS3Archive(newFakeS3(), "bucket", "mealwise"),
	}

	for name, archive := range archives {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, archive.Put(ctx, "images/meal-1", []byte{0xff, 0xd8}, "image/jpeg"))
			require.NoError(t, archive.Put(ctx, "traces/meal-1.json", []byte(`{"stages":[]}`), "application/json"))

			data, err := archive.Get(ctx, "images/meal-1")
			require.NoError(t, err)
			assert.Equal(t, []byte{0xff, 0xd8}, data)

			require.NoError(t, archive.Put(ctx, "images/meal-1", []byte("v2"), ""))
			data, err = archive.Get(ctx, "images/meal-1")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), data, "last write wins")

			_, err = archive.Get(ctx, "images/none")
			assert.True(t, mealwise.IsKind(err, mealwise.ErrNotFound), "got %v", err)

			for _, bad := range []string{"", "../etc/passwd", "images/../../x", "a//b"} {
				assert.Error(t, archive.Put(ctx, bad, []byte("x"), ""), "key %q", bad)
			}
		})
	}
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "images/abc", want: "images/abc"},
		{key: "/traces/abc.json", want: "traces/abc.json"},
		{key: "  x ", want: "x"},
		{key: "", wantErr: true},
		{key: "a/./b", wantErr: true},
		{key: "a/../b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := cleanKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(*in.Key, "mealwise/") {
		panic("key without prefix: " + *in.Key)
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}
