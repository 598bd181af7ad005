package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	DatabaseURL      string
	JWTSecret        string
	TokenTTL         time.Duration
	GoogleAudience   string
	AllowOrigins     []string
	LogstashTCPAddr  string
	AppBaseURL       string
	SMTPHost         string
	SMTPPort         string
	SMTPUsername     string
	SMTPPassword     string
	SMTPFrom         string
	PasswordResetTTL time.Duration
	BcryptCost       int
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	tokenTTL := 24 * time.Hour
	if v, err := time.ParseDuration(getenv("TOKEN_TTL", "24h")); err == nil && v > 0 {
		tokenTTL = v
	}

	resetTTL := time.Hour
	if v, err := time.ParseDuration(getenv("PASSWORD_RESET_TTL", "1h")); err == nil && v > 0 {
		resetTTL = v
	}

	bcryptCost := 10
	if v, err := strconv.Atoi(getenv("BCRYPT_COST", "10")); err == nil && v > 0 {
		bcryptCost = v
	}

	return Config{
		Port:             getenv("PORT", "8080"),
		DatabaseURL:      must("DATABASE_URL"),
		JWTSecret:        must("JWT_SECRET"),
		TokenTTL:         tokenTTL,
		GoogleAudience:   getenv("GOOGLE_AUDIENCE", ""),
		AllowOrigins:     splitAndTrim(getenv("ALLOW_ORIGINS", "*")),
		LogstashTCPAddr:  getenv("LOGSTASH_TCP_ADDR", ""),
		AppBaseURL:       getenv("APP_BASE_URL", "http://localhost:8080"),
		SMTPHost:         getenv("SMTP_HOST", ""),
		SMTPPort:         getenv("SMTP_PORT", ""),
		SMTPUsername:     getenv("SMTP_USERNAME", ""),
		SMTPPassword:     getenv("SMTP_PASSWORD", ""),
		SMTPFrom:         getenv("SMTP_FROM", ""),
		PasswordResetTTL: resetTTL,
		BcryptCost:       bcryptCost,
	}
}

func splitAndTrim(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}
