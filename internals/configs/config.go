package configs

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	JWTSecret       string
	DBEncryptionKey string // master secret wrapping every per-admin data key

	PublicBaseURL string

	StripeSecretKey     string
	StripeWebhookSecret string

	SquareAccessToken  string
	SquareSignatureKey string
	SquareLocationID   string
	SquareUseSandbox   bool

	MidtransServerKey     string
	MidtransUseProduction bool

	ReservationStale time.Duration
)

// =======================
// ENV LOADER
// =======================
func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("[WARN] no .env file found, using system ENV")
		}
	}

	JWTSecret = GetEnv("JWT_SECRET")
	DBEncryptionKey = GetEnv("DB_ENCRYPTION_KEY")
	PublicBaseURL = GetEnv("PUBLIC_BASE_URL", "http://localhost:3000")

	StripeSecretKey = GetEnv("STRIPE_SECRET_KEY")
	StripeWebhookSecret = GetEnv("STRIPE_WEBHOOK_SECRET")

	SquareAccessToken = GetEnv("SQUARE_ACCESS_TOKEN")
	SquareSignatureKey = GetEnv("SQUARE_SIGNATURE_KEY")
	SquareLocationID = GetEnv("SQUARE_LOCATION_ID")
	SquareUseSandbox = GetEnv("SQUARE_ENV", "sandbox") != "production"

	MidtransServerKey = GetEnv("MIDTRANS_SERVER_KEY")
	MidtransUseProduction = GetEnv("MIDTRANS_ENV", "sandbox") == "production"

	ReservationStale = staleFromEnv()

	if JWTSecret == "" {
		log.Println("[WARN] JWT_SECRET is not set")
	}
	if DBEncryptionKey == "" {
		log.Println("[WARN] DB_ENCRYPTION_KEY is not set; attendee data written now will be unreadable later")
	}
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if !exists && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

// RESERVATION_STALE_MS controls how long an unfinalized reservation may sit
// before a retry is allowed to reclaim it. Too short risks double-processing a
// slow registration; too long blocks legitimate webhook redeliveries.
func staleFromEnv() time.Duration {
	const def = 300_000 * time.Millisecond // 5 minutes
	raw := GetEnv("RESERVATION_STALE_MS")
	if raw == "" {
		return def
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		log.Printf("[WARN] invalid RESERVATION_STALE_MS=%q, using default", raw)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
