package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	eventModel "tickethub_backend/internals/features/events/model"
	registrationModel "tickethub_backend/internals/features/registrations/model"
	userModel "tickethub_backend/internals/features/users/model"
)

var DB *gorm.DB

func ConnectDB() {
	log.Println("[INFO] connecting to PostgreSQL...")

	sslmode := getenv("DB_SSLMODE", "require")
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=tickethub&options=-c statement_timeout=3000",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
		sslmode,
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // PgBouncer-friendly (transaction pooling)
	}), &gorm.Config{
		// Unique-constraint violations must surface as gorm.ErrDuplicatedKey:
		// the reservation ledger treats them as an expected outcome, not a
		// generic error.
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("[ERROR] DB connect failed: %v", err)
	}
	DB = db
	log.Println("[INFO] DB connected")
}

func TunePool() {
	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("[WARN] pool tune err: %v", err)
		return
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
}

// Migrate keeps the schema in sync. The unique primary key on
// processed_payments.stripe_session_id is the sole synchronization primitive
// for the registration pipeline, so it lives in the model definition and is
// enforced by the database, never emulated in application code.
func Migrate() {
	err := DB.AutoMigrate(
		&userModel.User{},
		&userModel.UserSession{},
		&eventModel.Event{},
		&eventModel.ActivityLog{},
		&registrationModel.ProcessedPayment{},
		&registrationModel.Attendee{},
	)
	if err != nil {
		log.Fatalf("[ERROR] automigrate failed: %v", err)
	}
}

func WarmUpQueries() {
	go func() {
		time.Sleep(500 * time.Millisecond)
		if err := ping(); err != nil {
			log.Printf("[WARN] warm-up ping err: %v", err)
		}
	}()
}

func ping() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
