package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go-pricetag-viewer/pkg/validation"
)

// Analyzer backends selectable through ANALYZER
const (
	AnalyzerRemote    = "remote"
	AnalyzerOllama    = "ollama"
	AnalyzerTesseract = "tesseract"
)

// Image sources selectable through IMAGE_SOURCE
const (
	ImageSourceHTTP  = "http"
	ImageSourceAzure = "azure"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	AnalysisTimeout    time.Duration
	RunTimeout         time.Duration // 0 means AnalysisTimeout per box
	MaxRequestBodySize int64
	LogLevel           string

	// External backend
	BackendURL    string
	CropBaseURL   string
	FetchAttempts int

	// Session
	ViewportWidth       int
	AnalysisConcurrency int

	// Analysis backend
	Analyzer       string
	OllamaURL      string
	OllamaModel    string
	OCRLanguage    string
	CropsDir       string
	ImageCacheSize int

	// Image source
	ImageSource         string
	AzureStorageAccount string
	AzureStorageKey     string
	AzureContainer      string
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// UsesLocalAnalyzer reports whether boxes are cropped and read in-process
func (c *Config) UsesLocalAnalyzer() bool {
	return c.Analyzer == AnalyzerOllama || c.Analyzer == AnalyzerTesseract
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		ImageFetchTimeout:  parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		AnalysisTimeout:    parseDurationOrDefault("ANALYSIS_TIMEOUT", 60*time.Second),
		RunTimeout:         parseDurationOrDefault("RUN_TIMEOUT", 0),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 1024*1024), // 1MB
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),

		BackendURL:    strings.TrimRight(getEnvOrDefault("BACKEND_URL", "http://localhost:8000"), "/"),
		FetchAttempts: int(parseIntOrDefault("FETCH_ATTEMPTS", 3)),

		ViewportWidth:       int(parseIntOrDefault("VIEWPORT_WIDTH", 1920)),
		AnalysisConcurrency: int(parseIntOrDefault("ANALYSIS_CONCURRENCY", 1)),

		Analyzer:       strings.ToLower(getEnvOrDefault("ANALYZER", AnalyzerRemote)),
		OllamaURL:      getEnvOrDefault("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:    getEnvOrDefault("OLLAMA_MODEL", "llava"),
		OCRLanguage:    getEnvOrDefault("OCR_LANGUAGE", "eng"),
		CropsDir:       getEnvOrDefault("CROPS_DIR", "./data/crops"),
		ImageCacheSize: int(parseIntOrDefault("IMAGE_CACHE_SIZE", 8)),

		ImageSource:         strings.ToLower(getEnvOrDefault("IMAGE_SOURCE", ImageSourceHTTP)),
		AzureStorageAccount: os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureStorageKey:     os.Getenv("AZURE_STORAGE_KEY"),
		AzureContainer:      getEnvOrDefault("AZURE_CONTAINER", "images"),
	}

	// Local analyzers write crops that this service serves itself
	defaultCropBase := cfg.BackendURL
	if cfg.UsesLocalAnalyzer() {
		defaultCropBase = ""
	}
	cfg.CropBaseURL = strings.TrimRight(getEnvOrDefault("CROP_BASE_URL", defaultCropBase), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.AnalysisTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, analysis=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.AnalysisTimeout)
	}

	urls := validation.NewURLValidator()
	if err := urls.ValidateBaseURL(c.BackendURL); err != nil {
		return fmt.Errorf("invalid BACKEND_URL: %w", err)
	}
	if c.CropBaseURL != "" {
		if err := urls.ValidateBaseURL(c.CropBaseURL); err != nil {
			return fmt.Errorf("invalid CROP_BASE_URL: %w", err)
		}
	}

	if c.FetchAttempts < 1 {
		return fmt.Errorf("FETCH_ATTEMPTS must be >= 1 (got %d)", c.FetchAttempts)
	}
	if c.ViewportWidth < 1 {
		return fmt.Errorf("VIEWPORT_WIDTH must be >= 1 (got %d)", c.ViewportWidth)
	}
	if c.AnalysisConcurrency < 1 {
		return fmt.Errorf("ANALYSIS_CONCURRENCY must be >= 1 (got %d)", c.AnalysisConcurrency)
	}
	if c.ImageCacheSize < 1 {
		return fmt.Errorf("IMAGE_CACHE_SIZE must be >= 1 (got %d)", c.ImageCacheSize)
	}

	switch c.Analyzer {
	case AnalyzerRemote, AnalyzerTesseract:
	case AnalyzerOllama:
		if err := urls.ValidateBaseURL(c.OllamaURL); err != nil {
			return fmt.Errorf("invalid OLLAMA_URL: %w", err)
		}
	default:
		return fmt.Errorf("unsupported ANALYZER: %q", c.Analyzer)
	}

	switch c.ImageSource {
	case ImageSourceHTTP:
	case ImageSourceAzure:
		if c.AzureStorageAccount == "" || c.AzureStorageKey == "" {
			return fmt.Errorf("IMAGE_SOURCE=azure requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
		}
	default:
		return fmt.Errorf("unsupported IMAGE_SOURCE: %q", c.ImageSource)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
