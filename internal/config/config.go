package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/menta2k/mlserver/pkg/registry"
	"github.com/menta2k/mlserver/pkg/transform"
	"github.com/menta2k/mlserver/pkg/types"
)

// Config file names inside the config directory, in merge order
const (
	AppFile      = "app.json"
	LocalAppFile = "app.local.json"
)

// Config holds the application configuration
type Config struct {
	Server      ServerConfig      `json:"server"`
	Predictions PredictionsConfig `json:"predictions"`
	Models      ModelsConfig      `json:"models"`
	Plugins     []registry.Entry  `json:"plugins"`
	Engines     EnginesConfig     `json:"engines"`
	Cache       CacheConfig       `json:"cache"`
}

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Addr    string `json:"addr"`
	Release bool   `json:"release"`
	// MaxConcurrent limits concurrent predictions, 0 is unlimited
	MaxConcurrent  int   `json:"max_concurrent"`
	MaxUploadBytes int64 `json:"max_upload_bytes"`
}

// PredictionsConfig holds defaults applied to every plugin
type PredictionsConfig struct {
	MaxResults  int    `json:"max_results"`
	JPEGQuality int    `json:"jpeg_quality"`
	Background  string `json:"background"`
	// MaxPixels caps width*height of a decoded request image
	MaxPixels int64 `json:"max_pixels"`
}

// ModelsConfig locates the model directories
type ModelsConfig struct {
	Dir string `json:"dir"`
}

// EnginesConfig holds configuration for the inference engines
type EnginesConfig struct {
	ONNX          ONNXConfig   `json:"onnx"`
	Ollama        RemoteConfig `json:"ollama"`
	LlamaCpp      RemoteConfig `json:"llamacpp"`
	RemoteTimeout Duration     `json:"remote_timeout"`
	RemoteRetries uint64       `json:"remote_retries"`
}

// ONNXConfig configures the ONNX Runtime engine
type ONNXConfig struct {
	// LibraryPath is the onnxruntime shared library, empty uses the platform default
	LibraryPath string `json:"library_path"`
	Threads     int    `json:"threads"`
}

// RemoteConfig configures an engine running on another server. An empty URL
// disables the engine.
type RemoteConfig struct {
	URL string `json:"url"`
}

// CacheConfig holds configuration for the prediction cache
type CacheConfig struct {
	// RedisAddr enables the cache when set
	RedisAddr string   `json:"redis_addr"`
	Password  string   `json:"password"`
	DB        int      `json:"db"`
	TTL       Duration `json:"ttl"`
}

// Duration is a time.Duration written as "1h30m" in JSON
type Duration time.Duration

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 10 << 20,
		},
		Predictions: PredictionsConfig{
			MaxResults:  5,
			JPEGQuality: transform.DefaultJPEGQuality,
			Background:  "#ffffff",
			MaxPixels:   transform.DefaultMaxPixels,
		},
		Models: ModelsConfig{
			Dir: "./models",
		},
		Plugins: []registry.Entry{
			{Name: "builtinColors", Model: "builtinColorClassifier"},
			{Name: "dropinColors", Model: "dropinColorClassifier", Optional: true},
			{Name: "builtinDigits", Model: "builtinDigitClassifier"},
		},
		Engines: EnginesConfig{
			RemoteTimeout: Duration(2 * time.Minute),
			RemoteRetries: 2,
		},
		Cache: CacheConfig{
			TTL: Duration(time.Hour),
		},
	}
}

// LoadFromFile loads configuration from a JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	config := Default()
	if err := config.merge(filename); err != nil {
		return nil, err
	}
	return config, nil
}

// Load reads app.json from dir and merges app.local.json on top when present.
// Lists such as plugins are replaced by the overlay, not appended to.
func Load(dir string) (*Config, error) {
	config, err := LoadFromFile(filepath.Join(dir, AppFile))
	if err != nil {
		return nil, err
	}

	local := filepath.Join(dir, LocalAppFile)
	if _, err := os.Stat(local); err == nil {
		if err := config.merge(local); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return config, nil
}

// Resolve loads dir when it holds an app.json and starts from the defaults
// otherwise. Environment overrides are applied last and the result is validated.
func Resolve(dir string) (*Config, error) {
	config := Default()
	if _, err := os.Stat(filepath.Join(dir, AppFile)); err == nil {
		loaded, err := Load(dir)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) merge(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	return nil
}

// ApplyEnv loads a .env file when present and applies environment overrides
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	c.Server.Addr = getEnv("MLSERVER_ADDR", c.Server.Addr)
	c.Models.Dir = getEnv("MLSERVER_MODELS_DIR", c.Models.Dir)
	c.Cache.RedisAddr = getEnv("MLSERVER_REDIS_ADDR", c.Cache.RedisAddr)
	c.Engines.ONNX.LibraryPath = getEnv("ONNXRUNTIME_LIB", c.Engines.ONNX.LibraryPath)
	c.Engines.Ollama.URL = getEnv("OLLAMA_URL", c.Engines.Ollama.URL)
	c.Engines.LlamaCpp.URL = getEnv("LLAMACPP_URL", c.Engines.LlamaCpp.URL)

	if v := os.Getenv("MLSERVER_MAX_RESULTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MLSERVER_MAX_RESULTS must be an integer: %w", err)
		}
		c.Predictions.MaxResults = n
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. Errors match types.ErrConfiguration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr cannot be empty")
	}

	if c.Server.MaxConcurrent < 0 {
		return invalid("server.max_concurrent cannot be negative")
	}

	if c.Server.MaxUploadBytes < 1 {
		return invalid("server.max_upload_bytes must be positive")
	}

	if c.Predictions.MaxResults < 1 {
		return invalid("predictions.max_results must be positive")
	}

	if c.Predictions.JPEGQuality < 1 || c.Predictions.JPEGQuality > 100 {
		return invalid("predictions.jpeg_quality must be between 1 and 100")
	}

	if c.Predictions.MaxPixels < 1 {
		return invalid("predictions.max_pixels must be positive")
	}

	if _, err := c.Background(); err != nil {
		return invalid("predictions.background: %v", err)
	}

	if c.Models.Dir == "" {
		return invalid("models.dir cannot be empty")
	}

	if len(c.Plugins) == 0 {
		return invalid("plugins cannot be empty")
	}

	seen := make(map[string]bool, len(c.Plugins))
	for i, p := range c.Plugins {
		if p.Name == "" || p.Model == "" {
			return invalid("plugins[%d] needs a name and a model", i)
		}
		if seen[p.Name] {
			return invalid("plugins[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
	}

	if c.Engines.RemoteTimeout < 0 {
		return invalid("engines.remote_timeout cannot be negative")
	}

	if c.Engines.ONNX.Threads < 0 {
		return invalid("engines.onnx.threads cannot be negative")
	}

	if c.Cache.TTL < 0 {
		return invalid("cache.ttl cannot be negative")
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrConfiguration, fmt.Sprintf(format, args...))
}

// Background returns the parsed default flatten color
func (c *Config) Background() (color.Color, error) {
	if c.Predictions.Background == "" {
		return transform.DefaultBackground, nil
	}
	return transform.ParseHexColor(c.Predictions.Background)
}

// ImageLimits bounds the image data read and decoded per request
func (c *Config) ImageLimits() transform.Limits {
	return transform.Limits{MaxBytes: c.Server.MaxUploadBytes, MaxPixels: c.Predictions.MaxPixels}
}

// GetConfigPath returns the default configuration directory
func GetConfigPath() string {
	return getEnv("MLSERVER_CONFIG_DIR", "./config")
}
