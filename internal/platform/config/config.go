package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	Redis         RedisConfig
	KafkaBrokers  string
	AuditTopic    string
	Policy        PolicyConfig
}

// RedisConfig holds rollup cache connection settings. An empty URL disables
// the cache entirely.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PolicyConfig carries the default classifier thresholds. Facilities can
// still override them at wiring time.
type PolicyConfig struct {
	ShortVisit     time.Duration
	MaxDailyEvents int
	GateOpenHour   int
	GateCloseHour  int
	FlagWeekends   bool
	Timezone       string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("GATELOG_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          addr,
		DatabaseURL:   os.Getenv("GATELOG_DATABASE_URL"),
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     envDefault("JWT_ISSUER", "gatelog"),
		JWTAudience:   envDefault("JWT_AUDIENCE", "gatelog"),
		Redis: RedisConfig{
			URL:          os.Getenv("GATELOG_REDIS_URL"),
			PoolSize:     envInt("GATELOG_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("GATELOG_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaBrokers: os.Getenv("GATELOG_KAFKA_BROKERS"),
		AuditTopic:   envDefault("GATELOG_AUDIT_TOPIC", "gatelog.audit.events"),
		Policy: PolicyConfig{
			ShortVisit:     time.Duration(envInt("GATELOG_SHORT_VISIT_MINUTES", 5)) * time.Minute,
			MaxDailyEvents: envInt("GATELOG_MAX_DAILY_EVENTS", 10),
			GateOpenHour:   envInt("GATELOG_GATE_OPEN_HOUR", 5),
			GateCloseHour:  envInt("GATELOG_GATE_CLOSE_HOUR", 23),
			FlagWeekends:   os.Getenv("GATELOG_FLAG_WEEKENDS") == "true",
			Timezone:       envDefault("GATELOG_TIMEZONE", "UTC"),
		},
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
