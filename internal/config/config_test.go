package config

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/menta2k/mlserver/pkg/types"
)

func TestDefault(t *testing.T) {
	c := Default()

	if err := c.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if c.Predictions.MaxResults != 5 {
		t.Errorf("Expected max results 5, got %d", c.Predictions.MaxResults)
	}
	if len(c.Plugins) != 3 || !c.Plugins[1].Optional || c.Plugins[0].Optional {
		t.Errorf("Expected builtin plugins required and dropin optional, got %+v", c.Plugins)
	}
}

func TestLoadWithLocalOverlay(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, AppFile), []byte(`{
		"server": {"addr": ":9000"},
		"predictions": {"max_results": 3},
		"cache": {"ttl": "10m"}
	}`), 0644)
	os.WriteFile(filepath.Join(dir, LocalAppFile), []byte(`{
		"predictions": {"max_results": 2},
		"plugins": [{"name": "colors", "model": "colorClassifier"}]
	}`), 0644)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Server.Addr != ":9000" {
		t.Errorf("Expected addr :9000, got %s", c.Server.Addr)
	}
	if c.Predictions.MaxResults != 2 {
		t.Errorf("Expected local overlay to win, got %d", c.Predictions.MaxResults)
	}
	if c.Predictions.JPEGQuality != 75 {
		t.Errorf("Expected default JPEG quality to survive, got %d", c.Predictions.JPEGQuality)
	}
	if len(c.Plugins) != 1 || c.Plugins[0].Name != "colors" {
		t.Errorf("Expected overlay to replace plugins, got %+v", c.Plugins)
	}
	if c.Cache.TTL.Std() != 10*time.Minute {
		t.Errorf("Expected TTL 10m, got %v", c.Cache.TTL.Std())
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Expected error for missing app.json")
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, AppFile), []byte(`{"cache": {"ttl": 5}}`), 0644)
	if _, err := Load(dir); err == nil {
		t.Error("Expected error for a numeric duration")
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", AppFile)
	c := Default()
	c.Engines.Ollama.URL = "http://ollama:11434"

	if err := c.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Engines.Ollama.URL != c.Engines.Ollama.URL || loaded.Engines.RemoteTimeout != c.Engines.RemoteTimeout {
		t.Errorf("Round trip lost engine settings: %+v", loaded.Engines)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MLSERVER_ADDR", ":7000")
	t.Setenv("MLSERVER_MAX_RESULTS", "9")
	t.Setenv("OLLAMA_URL", "http://gpu:11434")

	c := Default()
	if err := c.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if c.Server.Addr != ":7000" || c.Predictions.MaxResults != 9 || c.Engines.Ollama.URL != "http://gpu:11434" {
		t.Errorf("Environment not applied: %+v", c)
	}

	t.Setenv("MLSERVER_MAX_RESULTS", "many")
	if err := Default().ApplyEnv(); err == nil {
		t.Error("Expected error for a non-numeric max results")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"zero max results", func(c *Config) { c.Predictions.MaxResults = 0 }},
		{"quality too high", func(c *Config) { c.Predictions.JPEGQuality = 101 }},
		{"bad background", func(c *Config) { c.Predictions.Background = "white" }},
		{"no plugins", func(c *Config) { c.Plugins = nil }},
		{"duplicate plugin", func(c *Config) { c.Plugins[1].Name = c.Plugins[0].Name }},
		{"plugin without model", func(c *Config) { c.Plugins[0].Model = "" }},
		{"negative concurrency", func(c *Config) { c.Server.MaxConcurrent = -1 }},
		{"zero max pixels", func(c *Config) { c.Predictions.MaxPixels = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			if err := c.Validate(); !errors.Is(err, types.ErrConfiguration) {
				t.Errorf("Expected configuration error, got %v", err)
			}
		})
	}
}

func TestImageLimits(t *testing.T) {
	c := Default()
	c.Server.MaxUploadBytes = 1 << 20
	c.Predictions.MaxPixels = 4096

	limits := c.ImageLimits()
	if limits.MaxBytes != 1<<20 || limits.MaxPixels != 4096 {
		t.Errorf("Expected 1 MiB and 4096 pixels, got %+v", limits)
	}
	if Default().Predictions.MaxPixels != 89478485 {
		t.Errorf("Expected the default pixel cap 89478485, got %d", Default().Predictions.MaxPixels)
	}
}

func TestBackground(t *testing.T) {
	c := Default()
	c.Predictions.Background = "#102030"

	bg, err := c.Background()
	if err != nil {
		t.Fatalf("Background failed: %v", err)
	}
	if got := color.NRGBAModel.Convert(bg).(color.NRGBA); got != (color.NRGBA{0x10, 0x20, 0x30, 0xff}) {
		t.Errorf("Expected #102030, got %v", got)
	}
}

func TestResolve(t *testing.T) {
	c, err := Resolve(t.TempDir())
	if err != nil {
		t.Fatalf("Resolve without app.json failed: %v", err)
	}
	if c.Server.Addr != Default().Server.Addr {
		t.Errorf("Expected defaults, got %s", c.Server.Addr)
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, AppFile), []byte(`{"predictions": {"jpeg_quality": 0}}`), 0644)
	if _, err := Resolve(dir); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("Expected the loaded config to be validated, got %v", err)
	}
}
