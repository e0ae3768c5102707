package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"

	"github.com/ruby4mag/firewatch-backend/internal/ai"
	"github.com/ruby4mag/firewatch-backend/internal/imaging"
)

type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
	MaxUploadMB    int64

	// Document store and cache
	MongoURI        string
	MongoDB         string
	MongoCollection string
	RedisURI        string
	ReportsCacheTTL time.Duration

	// Photo hosting
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string

	// Inference
	ModelServerURL       string
	ModelServerTimeout   time.Duration
	ModelsFile           string
	InferenceConcurrency int
	MaxImagePixels       int
	Features             ai.Capabilities
	Persistence          bool

	// Events
	AMQPURL      string
	AMQPExchange string
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("could not read .env file, using process environment")
	}

	p := &parser{}
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "release"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		MaxUploadMB:    int64(p.getInt("MAX_UPLOAD_MB", 10)),

		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         getEnv("MONGO_DB", "firewatch"),
		MongoCollection: getEnv("MONGO_COLLECTION", "fire_reports"),
		RedisURI:        getEnv("REDIS_URI", ""),
		ReportsCacheTTL: p.getDuration("REPORTS_CACHE_TTL", 30*time.Second),

		CloudinaryCloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		CloudinaryFolder:    getEnv("CLOUDINARY_FOLDER", "fire_reports"),

		ModelServerURL:       getEnv("MODEL_SERVER_URL", "http://localhost:8501"),
		ModelServerTimeout:   p.getDuration("MODEL_SERVER_TIMEOUT", 30*time.Second),
		ModelsFile:           getEnv("MODELS_FILE", ""),
		InferenceConcurrency: p.getInt("INFERENCE_CONCURRENCY", runtime.NumCPU()),
		MaxImagePixels:       p.getInt("MAX_IMAGE_PIXELS", imaging.DefaultMaxPixels),
		Features: ai.Capabilities{
			Fire:      p.getBool("FEATURE_FIRE_DETECTION", true),
			Structure: p.getBool("FEATURE_STRUCTURE_DETECTION", true),
			Smoke:     p.getBool("FEATURE_SMOKE_DETECTION", true),
		},
		Persistence: p.getBool("FEATURE_PERSISTENCE", true),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fire_reports"),
	}
	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return cfg, nil
}

// Validate reports every startup problem at once so a bad deployment fails
// before serving traffic.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be positive"))
	}
	if c.MaxImagePixels <= 0 {
		errs = append(errs, errors.New("MAX_IMAGE_PIXELS must be positive"))
	}
	if c.InferenceConcurrency < 1 {
		errs = append(errs, errors.New("INFERENCE_CONCURRENCY must be at least 1"))
	}
	if c.ModelServerURL == "" && c.anyDetector() {
		errs = append(errs, errors.New("MODEL_SERVER_URL is required when a detector is enabled"))
	}
	if c.Persistence {
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required when persistence is enabled"))
		}
		for name, v := range map[string]string{
			"CLOUDINARY_CLOUD_NAME": c.CloudinaryCloudName,
			"CLOUDINARY_API_KEY":    c.CloudinaryAPIKey,
			"CLOUDINARY_API_SECRET": c.CloudinaryAPISecret,
		} {
			if v == "" {
				errs = append(errs, fmt.Errorf("%s is required when persistence is enabled", name))
			}
		}
	}

	specs, err := c.Models()
	if err != nil {
		errs = append(errs, err)
	} else {
		have := make(map[ai.Kind]bool)
		for _, s := range specs {
			have[s.Kind] = true
		}
		for _, k := range []ai.Kind{ai.KindFire, ai.KindStructure, ai.KindSmoke} {
			if c.Features.Enabled(k) && !have[k] {
				errs = append(errs, fmt.Errorf("%s detection is enabled but the model registry has no %s model", k, k))
			}
		}
	}
	return errors.Join(errs...)
}

// Models returns the model registry from MODELS_FILE, or the built-in one.
func (c *Config) Models() ([]ai.ModelSpec, error) {
	if c.ModelsFile == "" {
		return ai.DefaultRegistry()
	}
	data, err := os.ReadFile(c.ModelsFile)
	if err != nil {
		return nil, fmt.Errorf("read MODELS_FILE: %w", err)
	}
	return ai.ParseRegistry(data)
}

func (c *Config) anyDetector() bool {
	return c.Features.Fire || c.Features.Structure || c.Features.Smoke
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects conversion errors instead of stopping at the first one.
type parser struct {
	errs []error
}

func (p *parser) getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (p *parser) getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}
