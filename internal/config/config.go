package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/messaging"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	AutoMigrate           bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StoreID               string
	AgencyName            string
	RoundingStep          int
	ReportTTL             time.Duration
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	Relay                 RelayConfig
}

type RelayConfig struct {
	Timeout   time.Duration
	Endpoints map[string]messaging.Endpoint
}

var relayChannels = []string{
	domain.ChannelWhatsApp,
	domain.ChannelTelegram,
	domain.ChannelMAX,
	domain.ChannelSMS,
}

// Load reads the environment, with a .env file in the working directory
// filling in anything not already set.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] WARN: .env not loaded: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DEFAULT_STORE_ID", "main-office")
	v.SetDefault("AGENCY_NAME", "Страховое агентство")
	v.SetDefault("ROUNDING_STEP", 100)
	v.SetDefault("REPORT_TTL", "720h")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("RELAY_TIMEOUT", "10s")

	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}
	step := v.GetInt("ROUNDING_STEP")
	if step < 1 {
		step = 100
	}
	reportTTL := v.GetDuration("REPORT_TTL")
	if reportTTL <= 0 {
		reportTTL = 30 * 24 * time.Hour
	}
	relayTimeout := v.GetDuration("RELAY_TIMEOUT")
	if relayTimeout <= 0 {
		relayTimeout = 10 * time.Second
	}

	cfg := Config{
		Port:                  v.GetString("PORT"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           strings.TrimSpace(v.GetString("DATABASE_URL")),
		AutoMigrate:           v.GetBool("AUTO_MIGRATE"),
		RedisAddr:             strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		StoreID:               v.GetString("DEFAULT_STORE_ID"),
		AgencyName:            v.GetString("AGENCY_NAME"),
		RoundingStep:          step,
		ReportTTL:             reportTTL,
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ManagerPIN:            strings.TrimSpace(v.GetString("MANAGER_PIN")),
		Relay: RelayConfig{
			Timeout:   relayTimeout,
			Endpoints: make(map[string]messaging.Endpoint),
		},
	}

	for _, channel := range relayChannels {
		prefix := "RELAY_" + strings.ToUpper(channel)
		url := strings.TrimSpace(v.GetString(prefix + "_URL"))
		if url == "" {
			continue
		}
		cfg.Relay.Endpoints[channel] = messaging.Endpoint{
			URL:      url,
			BotToken: strings.TrimSpace(v.GetString(prefix + "_BOT_TOKEN")),
		}
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
