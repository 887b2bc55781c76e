package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mealwise"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists meals, their foods and feedback in a single sqlite
// file. Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
    PRAGMA foreign_keys = ON;

    CREATE TABLE IF NOT EXISTS meals (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        created_at INTEGER NOT NULL,
        context TEXT NOT NULL DEFAULT '',
        note TEXT NOT NULL DEFAULT '',
        energy_tag TEXT NOT NULL DEFAULT '',
        barcode TEXT NOT NULL DEFAULT '',
        balance_status TEXT NOT NULL,
        confidence REAL NOT NULL,
        ambiguous INTEGER NOT NULL,
        image_key TEXT NOT NULL DEFAULT '',
        nutrition TEXT NOT NULL,
        wellness TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS foods (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        meal_id TEXT NOT NULL,
        name TEXT NOT NULL,
        portion TEXT NOT NULL,
        confidence TEXT NOT NULL,
        synthetic INTEGER NOT NULL,
        FOREIGN KEY (meal_id) REFERENCES meals(id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS feedback (
        id TEXT PRIMARY KEY,
        meal_id TEXT NOT NULL,
        user_id TEXT NOT NULL,
        feedback_type TEXT NOT NULL,
        comment TEXT NOT NULL DEFAULT '',
        created_at INTEGER NOT NULL,
        FOREIGN KEY (meal_id) REFERENCES meals(id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_meals_user_created ON meals(user_id, created_at);
    CREATE INDEX IF NOT EXISTS idx_foods_meal_id ON foods(meal_id);
    CREATE INDEX IF NOT EXISTS idx_feedback_user_created ON feedback(user_id, created_at);
    `
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveMeal(ctx context.Context, meal mealwise.Meal) (string, error) {
	if meal.ID == "" {
		meal.ID = uuid.NewString()
	}
	if meal.CreatedAt.IsZero() {
		meal.CreatedAt = s.now()
	}
	nutrition, err := json.Marshal(meal.Nutrition)
	if err != nil {
		return "", fmt.Errorf("failed to encode nutrition: %w", err)
	}
	wellness, err := json.Marshal(meal.Wellness)
	if err != nil {
		return "", fmt.Errorf("failed to encode wellness: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	mealQuery := `
        INSERT INTO meals (id, user_id, created_at, context, note, energy_tag, barcode,
            balance_status, confidence, ambiguous, image_key, nutrition, wellness)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = tx.ExecContext(ctx, mealQuery,
		meal.ID, meal.UserID, meal.CreatedAt.UnixMilli(), string(meal.Context), meal.Note,
		string(meal.EnergyTag), meal.Barcode, string(meal.BalanceStatus), meal.Confidence,
		meal.Ambiguous, meal.ImageKey, string(nutrition), string(wellness))
	if err != nil {
		return "", fmt.Errorf("failed to insert meal: %w", err)
	}

	foodQuery := `
        INSERT INTO foods (meal_id, name, portion, confidence, synthetic)
        VALUES (?, ?, ?, ?, ?)
    `
	for _, food := range meal.Foods {
		_, err = tx.ExecContext(ctx, foodQuery,
			meal.ID, food.Name, food.Portion, string(food.Confidence), food.Synthetic)
		if err != nil {
			return "", fmt.Errorf("failed to insert food: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit meal: %w", err)
	}
	return meal.ID, nil
}

func (s *SQLiteStore) LoadRecentMeals(ctx context.Context, userID string, since time.Time) ([]mealwise.Meal, error) {
	query := `
        SELECT id, user_id, created_at, context, note, energy_tag, barcode,
            balance_status, confidence, ambiguous, image_key, nutrition, wellness
        FROM meals
        WHERE user_id = ? AND created_at >= ?
        ORDER BY created_at ASC
    `
	rows, err := s.db.QueryContext(ctx, query, userID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}
	defer rows.Close()

	var meals []mealwise.Meal
	for rows.Next() {
		var (
			m                   mealwise.Meal
			createdAt           int64
			mc, energy, status  string
			nutrition, wellness string
		)
		err := rows.Scan(&m.ID, &m.UserID, &createdAt, &mc, &m.Note, &energy, &m.Barcode,
			&status, &m.Confidence, &m.Ambiguous, &m.ImageKey, &nutrition, &wellness)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		m.CreatedAt = time.UnixMilli(createdAt)
		m.Context = mealwise.MealContext(mc)
		m.EnergyTag = mealwise.EnergyTag(energy)
		m.BalanceStatus = mealwise.BalanceStatus(status)
		if err := json.Unmarshal([]byte(nutrition), &m.Nutrition); err != nil {
			return nil, fmt.Errorf("failed to decode nutrition for meal %s: %w", m.ID, err)
		}
		if err := json.Unmarshal([]byte(wellness), &m.Wellness); err != nil {
			return nil, fmt.Errorf("failed to decode wellness for meal %s: %w", m.ID, err)
		}
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate meals: %w", err)
	}

	// Foods are loaded after the meal cursor is closed; the store uses a single connection.
	rows.Close()
	for i := range meals {
		if err := s.loadFoods(ctx, &meals[i]); err != nil {
			return nil, fmt.Errorf("failed to load foods for meal %s: %w", meals[i].ID, err)
		}
	}
	return meals, nil
}

func (s *SQLiteStore) loadFoods(ctx context.Context, meal *mealwise.Meal) error {
	query := `
        SELECT name, portion, confidence, synthetic
        FROM foods
        WHERE meal_id = ?
        ORDER BY id
    `
	rows, err := s.db.QueryContext(ctx, query, meal.ID)
	if err != nil {
		return fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()

	meal.Foods = []mealwise.FoodItem{}
	for rows.Next() {
		var f mealwise.FoodItem
		var conf string
		if err := rows.Scan(&f.Name, &f.Portion, &conf, &f.Synthetic); err != nil {
			return fmt.Errorf("failed to scan food: %w", err)
		}
		f.Confidence = mealwise.ConfidenceLevel(conf)
		meal.Foods = append(meal.Foods, f)
	}
	return rows.Err()
}

func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb mealwise.Feedback) (string, error) {
	if err := validateFeedback(fb); err != nil {
		return "", err
	}

	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM meals WHERE id = ?`, fb.MealID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("storage.feedback", "meal "+fb.MealID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up meal: %w", err)
	}
	if fb.UserID == "" {
		fb.UserID = owner
	}
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = s.now()
	}

	query := `
        INSERT INTO feedback (id, meal_id, user_id, feedback_type, comment, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `
	_, err = s.db.ExecContext(ctx, query,
		fb.ID, fb.MealID, fb.UserID, string(fb.Type), fb.Comment, fb.CreatedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to insert feedback: %w", err)
	}
	return fb.ID, nil
}

func (s *SQLiteStore) LoadFeedback(ctx context.Context, userID string, since time.Time) ([]mealwise.Feedback, error) {
	query := `
        SELECT id, meal_id, user_id, feedback_type, comment, created_at
        FROM feedback
        WHERE user_id = ? AND created_at >= ?
        ORDER BY created_at ASC
    `
	rows, err := s.db.QueryContext(ctx, query, userID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var out []mealwise.Feedback
	for rows.Next() {
		var fb mealwise.Feedback
		var kind string
		var createdAt int64
		if err := rows.Scan(&fb.ID, &fb.MealID, &fb.UserID, &kind, &fb.Comment, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		fb.Type = mealwise.FeedbackType(kind)
		fb.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, fb)
	}
	return out, rows.Err()
}
