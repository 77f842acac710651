package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// PayWave gateway configuration
	PayWave PayWaveConfig

	// Vendor configuration
	FlightVendorURL    string
	HotelVendorURL     string
	ActivityVendorURL  string
	VerifierURL        string
	VendorPollRate     float64
	VendorPollBurst    int

	// Booking configuration
	BookingLeaseTTL time.Duration

	// Optimization configuration
	MinSavingsThreshold decimal.Decimal
	MinPercentageChange decimal.Decimal
	OpportunityTTL      time.Duration

	// Scheduler configuration
	ScanInterval     time.Duration
	MaxTripAge       time.Duration
	SchedulerWorkers int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

type PayWaveConfig struct {
	BaseURL       string
	MerchantID    string
	ClientID      string
	ClientKey     string
	HMACKey       string
	WebhookSecret string
	NotifyChannel string
	SubscribeKey  string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// PayWave
		PayWave: PayWaveConfig{
			BaseURL:       getEnv("PAYWAVE_BASE_URL", "https://api.paywave.example"),
			MerchantID:    getEnv("PAYWAVE_MERCHANT_ID", ""),
			ClientID:      getEnv("PAYWAVE_CLIENT_ID", ""),
			ClientKey:     getEnv("PAYWAVE_CLIENT_KEY", ""),
			HMACKey:       getEnv("PAYWAVE_HMAC_KEY", ""),
			WebhookSecret: getEnv("PAYWAVE_WEBHOOK_SECRET", ""),
			NotifyChannel: getEnv("PAYWAVE_NOTIFY_CHANNEL", "paywave-capture-notifications"),
			SubscribeKey:  getEnv("PAYWAVE_SUBSCRIBE_KEY", ""),
		},

		// Vendors
		FlightVendorURL:   getEnv("FLIGHT_VENDOR_URL", "https://api.skyline.example"),
		HotelVendorURL:    getEnv("HOTEL_VENDOR_URL", "https://api.stayhub.example"),
		ActivityVendorURL: getEnv("ACTIVITY_VENDOR_URL", "https://api.citytours.example"),
		VerifierURL:       getEnv("VERIFIER_URL", "https://verify.internal.example"),
		VendorPollRate:    getEnvAsFloat("VENDOR_POLL_RATE", 10),
		VendorPollBurst:   getEnvAsInt("VENDOR_POLL_BURST", 20),

		// Booking
		BookingLeaseTTL: getEnvAsDuration("BOOKING_LEASE_TTL", "10m"),

		// Optimization
		MinSavingsThreshold: getEnvAsDecimal("MIN_SAVINGS_THRESHOLD", "25"),
		MinPercentageChange: getEnvAsDecimal("MIN_PERCENTAGE_CHANGE", "5"),
		OpportunityTTL:      getEnvAsDuration("OPPORTUNITY_TTL", "24h"),

		// Scheduler
		ScanInterval:     getEnvAsDuration("SCAN_INTERVAL", "15m"),
		MaxTripAge:       getEnvAsDuration("MAX_TRIP_AGE", "720h"),
		SchedulerWorkers: getEnvAsInt("SCHEDULER_WORKERS", 4),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsDecimal(key string, defaultValue string) decimal.Decimal {
	valueStr := getEnv(key, defaultValue)
	if value, err := decimal.NewFromString(valueStr); err == nil {
		return value
	}
	value, _ := decimal.NewFromString(defaultValue)
	return value
}
