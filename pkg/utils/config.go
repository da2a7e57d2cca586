package utils

import (
	"os"
	"strconv"
	"time"
)

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration
}

func LoadAuthConfig() AuthConfig {
	secret := os.Getenv("MANHWAHUB_JWT_SECRET")
	if secret == "" {
		// dev default (change for demo / production)
		secret = "dev-secret-change-me"
	}

	issuer := os.Getenv("MANHWAHUB_JWT_ISSUER")
	if issuer == "" {
		issuer = "manhwahub"
	}

	hours := envInt("MANHWAHUB_JWT_TTL_HOURS", 24)

	return AuthConfig{
		JWTSecret:   secret,
		JWTIssuer:   issuer,
		JWTDuration: time.Duration(hours) * time.Hour,
	}
}

// RedisConfig covers the tier-1 cache connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func LoadRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return RedisConfig{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASS"),
		DB:       envInt("REDIS_DB", 0),
	}
}

// UpstreamConfig covers the two catalog APIs: base URLs, per-target
// requests-per-second budgets and cache TTLs.
type UpstreamConfig struct {
	AniListURL  string
	MangaDexURL string
	AniListRPS  float64
	MangaDexRPS float64
	MaxAttempts int
	SearchTTL   time.Duration
	DetailsTTL  time.Duration
	UserListTTL time.Duration
	StatsTTL    time.Duration
	ChaptersTTL time.Duration

	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURI  string
}

func LoadUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		AniListURL:  envStr("ANILIST_API_URL", "https://graphql.anilist.co"),
		MangaDexURL: envStr("MANGADEX_API_URL", "https://api.mangadex.org"),
		// AniList allows 90 req/min, MangaDex 5 req/s; stay under both.
		AniListRPS:  envFloat("ANILIST_RPS", 1.2),
		MangaDexRPS: envFloat("MANGADEX_RPS", 4),
		MaxAttempts: envInt("UPSTREAM_MAX_ATTEMPTS", 3),
		SearchTTL:   envDuration("CACHE_SEARCH_TTL", 15*time.Minute),
		DetailsTTL:  envDuration("CACHE_DETAILS_TTL", time.Hour),
		UserListTTL: envDuration("CACHE_USER_LIST_TTL", 10*time.Minute),
		StatsTTL:    envDuration("CACHE_STATS_TTL", 30*time.Minute),
		ChaptersTTL: envDuration("CACHE_CHAPTERS_TTL", 15*time.Minute),

		OAuthClientID:     os.Getenv("ANILIST_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("ANILIST_CLIENT_SECRET"),
		OAuthRedirectURI:  os.Getenv("ANILIST_REDIRECT_URI"),
	}
}

type ServerConfig struct {
	Addr string
}

func LoadServerConfig() ServerConfig {
	return ServerConfig{Addr: envStr("MANHWAHUB_ADDR", ":8080")}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
