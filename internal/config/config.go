package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	JWTPublicKeyPath string

	Push Push

	SNSRegion      string
	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users         string
	Devices       string
	Notifications string
	Inventory     string
}

// Push holds the delivery-engine tuning knobs.
type Push struct {
	Concurrency   int           // bounded worker pool for outbound provider calls
	Timeout       time.Duration // per-notification dispatch deadline
	RetryAttempts int
	RetryBackoff  time.Duration

	ExpoChunkSize    int
	ExpoReceiptDelay time.Duration
	ExpoBaseURL      string // overridable for tests

	FCMCredentialsFile string // primary API service account
	FCMServerKey       string // legacy HTTP API key
	FCMLegacyURL       string // overridable for tests

	// StrictTokens rejects tokens that match neither provider shape instead
	// of routing them to FCM.
	StrictTokens bool

	LowStockScanTime string        // "HH:MM", local time of the daily run
	ExpiryHorizon    time.Duration // notify for items expiring within this window
	DedupTTL         time.Duration // suppress repeat detections for this long
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:         getEnv("DYNAMO_TABLE_USERS", "users"),
			Devices:       getEnv("DYNAMO_TABLE_DEVICES", "devices"),
			Notifications: getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			Inventory:     getEnv("DYNAMO_TABLE_INVENTORY", "inventory_items"),
		},

		JWTPublicKeyPath: getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),

		Push: Push{
			Concurrency:   getEnvInt("PUSH_CONCURRENCY", 8),
			Timeout:       getEnvMillis("PUSH_TIMEOUT_MS", 10_000),
			RetryAttempts: getEnvInt("RETRY_ATTEMPTS", 3),
			RetryBackoff:  getEnvMillis("RETRY_BACKOFF_MS", 500),

			ExpoChunkSize:    getEnvInt("EXPO_CHUNK_SIZE", 100),
			ExpoReceiptDelay: getEnvMillis("EXPO_RECEIPT_DELAY_MS", 15*60*1000),
			ExpoBaseURL:      getEnv("EXPO_BASE_URL", "https://exp.host/--/api/v2"),

			FCMCredentialsFile: getEnv("FCM_CREDENTIALS_FILE", ""),
			FCMServerKey:       getEnv("FCM_SERVER_KEY", ""),
			FCMLegacyURL:       getEnv("FCM_LEGACY_URL", "https://fcm.googleapis.com/fcm/send"),

			StrictTokens: getEnvBool("PUSH_TOKEN_STRICT", false),

			LowStockScanTime: getEnv("LOW_STOCK_SCAN_TIME", "06:00"),
			ExpiryHorizon:    time.Duration(getEnvInt("EXPIRY_HORIZON_DAYS", 30)) * 24 * time.Hour,
			DedupTTL:         getEnvMillis("DETECTION_DEDUP_TTL_MS", 24*60*60*1000),
		},

		SNSRegion:      getEnv("SNS_REGION", "us-east-1"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}
