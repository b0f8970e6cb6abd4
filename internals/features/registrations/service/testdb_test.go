package service

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database. A single connection keeps
// sqlite's serialization semantics close enough to a real primary-key race:
// every insert still hits the same unique constraint.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	for _, ddl := range []string{
		`CREATE TABLE processed_payments (
			stripe_session_id TEXT PRIMARY KEY,
			attendee_id TEXT,
			processed_at DATETIME NOT NULL
		)`,
		`CREATE TABLE users (
			user_id TEXT PRIMARY KEY,
			user_email TEXT NOT NULL UNIQUE,
			user_name TEXT NOT NULL,
			user_password_hash TEXT NOT NULL,
			user_key_salt BLOB NOT NULL,
			user_wrapped_data_key BLOB NOT NULL,
			user_server_wrapped_key BLOB NOT NULL,
			user_created_at DATETIME,
			user_updated_at DATETIME,
			user_deleted_at DATETIME
		)`,
		`CREATE TABLE events (
			event_id TEXT PRIMARY KEY,
			event_owner_id TEXT NOT NULL,
			event_name TEXT NOT NULL,
			event_description TEXT,
			event_price_amount INTEGER NOT NULL,
			event_currency TEXT NOT NULL DEFAULT 'USD',
			event_provider TEXT NOT NULL,
			event_collect_name BOOLEAN NOT NULL DEFAULT 1,
			event_collect_email BOOLEAN NOT NULL DEFAULT 1,
			event_collect_phone BOOLEAN NOT NULL DEFAULT 0,
			event_notify_url TEXT,
			event_webhook_endpoint_id TEXT,
			event_created_at DATETIME,
			event_updated_at DATETIME,
			event_deleted_at DATETIME
		)`,
		`CREATE TABLE attendees (
			attendee_id TEXT PRIMARY KEY,
			attendee_event_id TEXT NOT NULL,
			attendee_name TEXT,
			attendee_email TEXT,
			attendee_phone TEXT,
			attendee_quantity INTEGER NOT NULL,
			attendee_amount_total INTEGER NOT NULL,
			attendee_checked_in BOOLEAN NOT NULL DEFAULT 0,
			attendee_payment_ref TEXT,
			attendee_created_at DATETIME
		)`,
		`CREATE TABLE activity_logs (
			activity_id TEXT PRIMARY KEY,
			activity_event_id TEXT,
			activity_message TEXT NOT NULL,
			activity_meta TEXT,
			activity_created_at DATETIME
		)`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}
