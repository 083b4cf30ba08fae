package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL          string
	WSURL               string
	Token               string
	JWTSecret           string
	VideoCallBaseURL    string
	PollInterval        time.Duration
	InviteTimeout       time.Duration
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
	AppEnv              string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	apiBaseURL, exists := os.LookupEnv("API_BASE_URL")
	if !exists || apiBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	wsURL := getEnv("WS_URL", "")
	if wsURL == "" {
		wsURL = deriveWSURL(apiBaseURL)
	}

	return &Config{
		APIBaseURL:          strings.TrimRight(apiBaseURL, "/"),
		WSURL:               wsURL,
		Token:               getEnv("SKILLFORGE_TOKEN", ""),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		VideoCallBaseURL:    getEnv("VIDEO_CALL_BASE_URL", "https://meet.skillforge.app"),
		PollInterval:        getEnvDuration("UNREAD_POLL_INTERVAL", 30*time.Second),
		InviteTimeout:       getEnvDuration("CALL_INVITE_TIMEOUT", 30*time.Second),
		CloudinaryCloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		CloudinaryFolder:    getEnv("CLOUDINARY_FOLDER", "skillforge"),
		AppEnv:              normalizeEnv(getEnv("APP_ENV", "production")),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

// deriveWSURL rewrites the API base into the websocket endpoint the backend
// mounts next to it.
func deriveWSURL(apiBaseURL string) string {
	ws := strings.TrimRight(apiBaseURL, "/")
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/ws"
}
