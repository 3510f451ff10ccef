package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/gymgate.db"

	// Facility
	Timezone string // civil timezone for "today" / weekday / time-of-day
	DeviceID string // stamped on every audit row

	// Decision engine
	DecideTimeout         time.Duration
	RestrictionFailClosed bool // default false: store error on restriction fetch = no restriction

	// DeviceLink
	DeviceWSURL    string
	AutoReconnect  bool
	ReconnectDelay time.Duration
	CallTimeout    time.Duration

	// Management API auth. Empty secret disables auth (dev).
	AuthSecret string
	TokenTTL   time.Duration

	// Access-log retention
	LogRetentionDays   int // 0 = keep forever
	PruneIntervalHours int // how often the pruner runs (default 6)
}

func FromEnv() Config {
	addr := getenvDefault("GYMGATE_HTTP_ADDR", ":8080")

	env := strings.ToLower(getenvDefault("GYMGATE_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	dbPath := getenvDefault("GYMGATE_DB_PATH", "./data/gymgate.db")

	tz := getenvDefault("GYMGATE_TIMEZONE", "America/Mexico_City")
	deviceID := getenvDefault("GYMGATE_DEVICE_ID", "F22-MAIN")

	decideTimeout := getenvDuration("GYMGATE_DECIDE_TIMEOUT", 3*time.Second)
	failClosed := getenvBool("GYMGATE_RESTRICTION_FAIL_CLOSED", false)

	wsURL := getenvDefault("GYMGATE_DEVICE_WS_URL", "ws://localhost:8082")
	autoReconnect := getenvBool("GYMGATE_DEVICE_AUTORECONNECT", true)
	reconnectDelay := getenvDuration("GYMGATE_DEVICE_RECONNECT_DELAY", 3*time.Second)
	callTimeout := getenvDuration("GYMGATE_DEVICE_CALL_TIMEOUT", 10*time.Second)

	authSecret := strings.TrimSpace(os.Getenv("GYMGATE_AUTH_SECRET"))
	tokenTTL := getenvDuration("GYMGATE_TOKEN_TTL", 12*time.Hour)

	retentionDays := getenvInt("GYMGATE_LOG_RETENTION_DAYS", 0)
	pruneInterval := getenvInt("GYMGATE_PRUNE_INTERVAL_HOURS", 6)

	return Config{
		HTTPAddr: addr,
		Env:      env,
		DBPath:   dbPath,

		Timezone: tz,
		DeviceID: deviceID,

		DecideTimeout:         decideTimeout,
		RestrictionFailClosed: failClosed,

		DeviceWSURL:    wsURL,
		AutoReconnect:  autoReconnect,
		ReconnectDelay: reconnectDelay,
		CallTimeout:    callTimeout,

		AuthSecret: authSecret,
		TokenTTL:   tokenTTL,

		LogRetentionDays:   retentionDays,
		PruneIntervalHours: pruneInterval,
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
