package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds runtime settings read from the environment.
type Config struct {
	Port           string
	GinMode        string
	Env            string // "development" | "production"
	DataDir        string
	DevMode        bool
	JWTSecret      string
	AllowedOrigins []string

	RedisURL       string
	DatabaseDriver string // "sqlite" | "postgres"
	DatabaseURL    string

	FunctionsURL  string
	FunctionsKey  string
	CrawlMode     string // "remote" | "local"
	CitationMode  string // "remote" | "local"
	CrawlMaxPages int

	OpenAIKey     string
	AnthropicKey  string
	PerplexityKey string
	LocalLLMURL   string
	DefaultModel  string

	PlansFile string
	IPRate    float64
	IPBurst   int
}

// LoadEnv loads .env.development first, then .env. Missing files are not an error.
func LoadEnv() error {
	if err := godotenv.Load(".env.development"); err != nil {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Load reads Config from the environment, applying defaults.
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8082"),
		GinMode:        getEnv("GIN_MODE", "release"),
		Env:            getEnv("APP_ENV", "production"),
		DataDir:        getEnv("DATA_DIR", "data"),
		DevMode:        getEnvBool("DEV_MODE", false),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),

		RedisURL:       getEnv("REDIS_URL", ""),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		FunctionsURL:  getEnv("FUNCTIONS_URL", ""),
		FunctionsKey:  getEnv("FUNCTIONS_KEY", ""),
		CrawlMode:     strings.ToLower(getEnv("CRAWL_MODE", "remote")),
		CitationMode:  strings.ToLower(getEnv("CITATION_MODE", "remote")),
		CrawlMaxPages: getEnvInt("CRAWL_MAX_PAGES", 5),

		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		AnthropicKey:  getEnv("ANTHROPIC_API_KEY", ""),
		PerplexityKey: getEnv("PERPLEXITY_API_KEY", ""),
		LocalLLMURL:   getEnv("LOCAL_LLM_URL", ""),
		DefaultModel:  getEnv("DEFAULT_MODEL", "gpt-4o-mini"),

		PlansFile: getEnv("PLANS_FILE", ""),
		IPRate:    getEnvFloat("IP_RATE", 2),
		IPBurst:   getEnvInt("IP_BURST", 5),
	}
}

func (c *Config) IsDev() bool { return c.Env == "development" }

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if f, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return f
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return defaultVal
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
