package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Backend REST API
	APIBaseURL string

	// MQTT
	MQTTPort            int
	MQTTKeepAlive       time.Duration
	MQTTReconnectPeriod time.Duration
	MQTTConnectTimeout  time.Duration
	MQTTPublishTimeout  time.Duration

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	LookupTTL     time.Duration

	// Viewer session (cookie-derived values in the dashboard)
	ViewerRole    string
	ViewerProject string

	// Application
	OpsBindAddr     string
	LogLevel        string
	FeedCapacity    int
	RefreshInterval time.Duration
}

func Load() (*Config, error) {
	// .env is optional; environment variables win either way
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	mqttPort, _ := strconv.Atoi(getEnv("MQTT_PORT", "8884"))
	feedCap, _ := strconv.Atoi(getEnv("FEED_CAPACITY", "1000"))
	refreshSec, _ := strconv.Atoi(getEnv("REFRESH_SECONDS", "300"))
	lookupTTLSec, _ := strconv.Atoi(getEnv("LOOKUP_TTL_SECONDS", "60"))

	return &Config{
		APIBaseURL:          getEnv("API_BASE_URL", "http://localhost/robots_api/api"),
		MQTTPort:            mqttPort,
		MQTTKeepAlive:       30 * time.Second,
		MQTTReconnectPeriod: 5 * time.Second,
		MQTTConnectTimeout:  10 * time.Second,
		MQTTPublishTimeout:  10 * time.Second,
		RedisHost:           getEnv("REDIS_HOST", "localhost"),
		RedisPort:           getEnv("REDIS_PORT", "6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             redisDB,
		LookupTTL:           time.Duration(lookupTTLSec) * time.Second,
		ViewerRole:          getEnv("VIEWER_ROLE", "user"),
		ViewerProject:       getEnv("VIEWER_PROJECT", ""),
		OpsBindAddr:         getEnv("OPS_BIND_ADDR", ":8090"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		FeedCapacity:        feedCap,
		RefreshInterval:     time.Duration(refreshSec) * time.Second,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
