// Package store opens the relational store and defines the error taxonomy
// shared by every component that touches it.
package store

import (
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"agenda/internal/model"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist.
	ErrNotFound = errors.New("record not found")
	// ErrValidation is returned when the caller's input is rejected.
	ErrValidation = errors.New("invalid input")
	// ErrConflict is returned on a uniqueness or concurrent-update conflict.
	ErrConflict = errors.New("record conflict")
)

// Open connects to the SQLite database at path and migrates the schema.
// Use ":memory:" for tests.
func Open(path string, log *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}

	if err := db.AutoMigrate(
		&model.UserProfile{},
		&model.Permission{},
		&model.User{},
		&model.Calendar{},
		&model.Event{},
		&model.NotificationLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info("database ready", "path", path)
	return db, nil
}

// Translate maps driver-level errors onto the package sentinels so callers
// can match with errors.Is without importing gorm.
func Translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	default:
		return err
	}
}
