// Package config loads the assistant configuration from a YAML or JSON file,
// an optional .env file and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"content_ideas_assistant/gateway"
	"content_ideas_assistant/generator"
	"content_ideas_assistant/moderation"
)

const proxyAPIBaseURL = "https://api.proxyapi.ru/openai/v1"

type Config struct {
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Models     ModelsConfig     `yaml:"models" json:"models"`
	Generation GenerationConfig `yaml:"generation" json:"generation"`
	Moderation ModerationConfig `yaml:"moderation" json:"moderation"`
	Session    SessionConfig    `yaml:"session" json:"session"`
	Images     ImagesConfig     `yaml:"images" json:"images"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Registry   RegistryConfig   `yaml:"registry" json:"registry"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// LLMConfig selects the OpenAI-compatible endpoint.
type LLMConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // proxyapi, openai, deepseek, mock
	APIKey     string `yaml:"api_key" json:"api_key,omitempty"`
	BaseURL    string `yaml:"base_url" json:"base_url,omitempty"`
	Timeout    string `yaml:"timeout" json:"timeout,omitempty"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries,omitempty"`
}

type ModelsConfig struct {
	Text       string `yaml:"text_generation" json:"text_generation"`
	FinalPost  string `yaml:"final_post" json:"final_post"`
	Fallback   string `yaml:"fallback_post" json:"fallback_post"`
	Image      string `yaml:"image_generation" json:"image_generation"`
	Speech     string `yaml:"speech_to_text" json:"speech_to_text"`
	Moderation string `yaml:"moderation" json:"moderation"`
}

type GenerationConfig struct {
	MaxTokensIdeas         int     `yaml:"max_tokens_ideas" json:"max_tokens_ideas"`
	MaxTokensPost          int     `yaml:"max_tokens_post" json:"max_tokens_post"`
	MaxTokensImagePrompt   int     `yaml:"max_tokens_image_prompt" json:"max_tokens_image_prompt"`
	TemperatureIdeas       float64 `yaml:"temperature_ideas" json:"temperature_ideas"`
	TemperaturePost        float64 `yaml:"temperature_post" json:"temperature_post"`
	TemperatureImagePrompt float64 `yaml:"temperature_image_prompt" json:"temperature_image_prompt"`
	ImageSize              string  `yaml:"image_size" json:"image_size"`
	ImageQuality           string  `yaml:"image_quality" json:"image_quality"`
}

type ModerationConfig struct {
	Temperature         float64 `yaml:"temperature" json:"temperature"`
	MaxOffTopicAttempts int     `yaml:"max_off_topic_attempts" json:"max_off_topic_attempts"`
}

type SessionConfig struct {
	TTL            string `yaml:"ttl" json:"ttl"`
	SweepInterval  string `yaml:"sweep_interval" json:"sweep_interval"`
	ReturningAfter string `yaml:"returning_after" json:"returning_after"`
	Language       string `yaml:"language" json:"language"`
}

type ImagesConfig struct {
	SaveLocally      bool   `yaml:"save_locally" json:"save_locally"`
	Folder           string `yaml:"folder" json:"folder"`
	DeliveryAttempts int    `yaml:"delivery_attempts" json:"delivery_attempts"`
	DeliveryPause    string `yaml:"delivery_pause" json:"delivery_pause"`
}

type ServerConfig struct {
	Addr           string `yaml:"addr" json:"addr"`
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
}

type RegistryConfig struct {
	Driver string `yaml:"driver" json:"driver"` // memory, sqlite
	Path   string `yaml:"path" json:"path"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	g := generator.DefaultSettings()
	m := moderation.DefaultSettings()
	return &Config{
		LLM: LLMConfig{
			Provider:   "proxyapi",
			BaseURL:    proxyAPIBaseURL,
			Timeout:    "60s",
			MaxRetries: 2,
		},
		Models: ModelsConfig{
			Text:       g.TextModel,
			FinalPost:  g.PostModel,
			Fallback:   g.FallbackModel,
			Image:      g.ImageModel,
			Speech:     "whisper-1",
			Moderation: m.Model,
		},
		Generation: GenerationConfig{
			MaxTokensIdeas:         g.MaxTokensIdeas,
			MaxTokensPost:          g.MaxTokensPost,
			MaxTokensImagePrompt:   g.MaxTokensImagePrompt,
			TemperatureIdeas:       g.TemperatureIdeas,
			TemperaturePost:        g.TemperaturePost,
			TemperatureImagePrompt: g.TemperatureImagePrompt,
			ImageSize:              g.ImageSize,
			ImageQuality:           g.ImageQuality,
		},
		Moderation: ModerationConfig{
			Temperature:         m.Temperature,
			MaxOffTopicAttempts: m.MaxOffTopicAttempts,
		},
		Session: SessionConfig{
			TTL:            "24h",
			SweepInterval:  "10m",
			ReturningAfter: "12h",
			Language:       "ru",
		},
		Images: ImagesConfig{
			Folder:           "generated_images",
			DeliveryAttempts: 3,
			DeliveryPause:    "2s",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: "3m",
		},
		Registry: RegistryConfig{Driver: "memory", Path: "data/registry.db"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads path (YAML, or JSON for .json files) over the defaults, then
// envFile, then the environment. A missing file leaves the defaults in place.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := cfg.decode(path, data); err != nil {
				return nil, err
			}
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if key := os.Getenv("PROXYAPI_KEY"); key != "" {
		c.LLM.APIKey = key
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "proxyapi" && c.LLM.BaseURL == proxyAPIBaseURL {
			c.LLM.Provider = "openai"
			c.LLM.BaseURL = ""
		}
	}
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.BaseURL, "PROXYAPI_BASE_URL")

	setString(&c.Models.Text, "MODEL_TEXT_GENERATION")
	setString(&c.Models.FinalPost, "MODEL_FINAL_POST")
	setString(&c.Models.Fallback, "MODEL_FALLBACK_POST")
	setString(&c.Models.Image, "MODEL_IMAGE_GENERATION")
	setString(&c.Models.Speech, "MODEL_SPEECH_TO_TEXT")
	setString(&c.Models.Moderation, "MODEL_MODERATION")

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Images.Folder, "IMAGES_FOLDER")
	setString(&c.Server.Addr, "SERVER_ADDR")
	setString(&c.Registry.Driver, "REGISTRY_DRIVER")
	setString(&c.Registry.Path, "REGISTRY_PATH")
	setString(&c.Session.TTL, "SESSION_TTL")

	return errors.Join(
		setInt(&c.Generation.MaxTokensIdeas, "MAX_TOKENS_IDEAS"),
		setInt(&c.Generation.MaxTokensPost, "MAX_TOKENS_POST"),
		setFloat(&c.Generation.TemperatureIdeas, "TEMPERATURE_IDEAS"),
		setFloat(&c.Generation.TemperaturePost, "TEMPERATURE_POST"),
		setFloat(&c.Generation.TemperatureImagePrompt, "TEMPERATURE_IMAGE_PROMPT"),
		setFloat(&c.Moderation.Temperature, "TEMPERATURE_MODERATION"),
		setInt(&c.Moderation.MaxOffTopicAttempts, "MAX_OFF_TOPIC_ATTEMPTS"),
		setBool(&c.Images.SaveLocally, "SAVE_IMAGES_LOCALLY"),
	)
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, name string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, name string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = b
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	intRange := func(name string, v, lo, hi int) {
		check(v >= lo && v <= hi, "%s must be in [%d, %d], got %d", name, lo, hi, v)
	}
	floatRange := func(name string, v, lo, hi float64) {
		check(v >= lo && v <= hi, "%s must be in [%g, %g], got %g", name, lo, hi, v)
	}

	provider := strings.ToLower(c.LLM.Provider)
	switch provider {
	case "proxyapi", "openai", "deepseek", "mock":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	check(provider == "mock" || c.LLM.APIKey != "", "api key is not set (PROXYAPI_KEY or OPENAI_API_KEY)")
	check(provider != "deepseek" || c.LLM.BaseURL != "", "llm provider deepseek requires base_url")

	intRange("generation.max_tokens_ideas", c.Generation.MaxTokensIdeas, 500, 4000)
	intRange("generation.max_tokens_post", c.Generation.MaxTokensPost, 1000, 4000)
	floatRange("generation.temperature_ideas", c.Generation.TemperatureIdeas, 0, 2)
	floatRange("generation.temperature_post", c.Generation.TemperaturePost, 0, 2)
	floatRange("generation.temperature_image_prompt", c.Generation.TemperatureImagePrompt, 0, 2)
	floatRange("moderation.temperature", c.Moderation.Temperature, 0, 1)
	intRange("moderation.max_off_topic_attempts", c.Moderation.MaxOffTopicAttempts, 1, 10)
	intRange("images.delivery_attempts", c.Images.DeliveryAttempts, 1, 10)

	for name, v := range map[string]string{
		"llm.timeout":             c.LLM.Timeout,
		"session.ttl":             c.Session.TTL,
		"session.sweep_interval":  c.Session.SweepInterval,
		"session.returning_after": c.Session.ReturningAfter,
		"images.delivery_pause":   c.Images.DeliveryPause,
		"server.request_timeout":  c.Server.RequestTimeout,
	} {
		d, err := time.ParseDuration(v)
		check(err == nil && d > 0, "%s must be a positive duration, got %q", name, v)
	}

	switch c.Registry.Driver {
	case "memory":
	case "sqlite":
		check(c.Registry.Path != "", "registry.path is required for the sqlite driver")
	default:
		errs = append(errs, fmt.Errorf("registry.driver %q is not supported", c.Registry.Driver))
	}
	check(!c.Images.SaveLocally || c.Images.Folder != "", "images.folder is required when saving images")

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// duration parses a validated duration, falling back to def.
func duration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c *Config) SessionTTL() time.Duration     { return duration(c.Session.TTL, 24*time.Hour) }
func (c *Config) SweepInterval() time.Duration  { return duration(c.Session.SweepInterval, 10*time.Minute) }
func (c *Config) ReturningAfter() time.Duration { return duration(c.Session.ReturningAfter, 12*time.Hour) }
func (c *Config) DeliveryPause() time.Duration  { return duration(c.Images.DeliveryPause, 2*time.Second) }
func (c *Config) RequestTimeout() time.Duration { return duration(c.Server.RequestTimeout, 3*time.Minute) }

// LogLevel returns the configured level, info when unparsable.
func (c *Config) LogLevel() zapcore.Level {
	l, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func (c *Config) GatewaySettings() gateway.Settings {
	return gateway.Settings{
		Provider:    c.LLM.Provider,
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Timeout:     duration(c.LLM.Timeout, 60*time.Second),
		MaxRetries:  c.LLM.MaxRetries,
		SpeechModel: c.Models.Speech,
	}
}

func (c *Config) GeneratorSettings() generator.Settings {
	s := generator.DefaultSettings()
	s.TextModel = c.Models.Text
	s.PostModel = c.Models.FinalPost
	s.FallbackModel = c.Models.Fallback
	s.ImageModel = c.Models.Image
	s.ImageSize = c.Generation.ImageSize
	s.ImageQuality = c.Generation.ImageQuality
	s.MaxTokensIdeas = c.Generation.MaxTokensIdeas
	s.MaxTokensPost = c.Generation.MaxTokensPost
	s.MaxTokensImagePrompt = c.Generation.MaxTokensImagePrompt
	s.TemperatureIdeas = c.Generation.TemperatureIdeas
	s.TemperaturePost = c.Generation.TemperaturePost
	s.TemperatureImagePrompt = c.Generation.TemperatureImagePrompt
	return s
}

func (c *Config) ModerationSettings() moderation.Settings {
	s := moderation.DefaultSettings()
	s.Model = c.Models.Moderation
	s.Temperature = c.Moderation.Temperature
	s.MaxOffTopicAttempts = c.Moderation.MaxOffTopicAttempts
	return s
}

// Summary describes the configuration without secrets.
func (c *Config) Summary() string {
	set := func(v string) string {
		if v == "" {
			return "not set"
		}
		return "set"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "provider=%s base_url=%s api_key=%s\n", c.LLM.Provider, c.LLM.BaseURL, set(c.LLM.APIKey))
	fmt.Fprintf(&b, "models: text=%s post=%s fallback=%s image=%s speech=%s moderation=%s\n",
		c.Models.Text, c.Models.FinalPost, c.Models.Fallback, c.Models.Image, c.Models.Speech, c.Models.Moderation)
	fmt.Fprintf(&b, "max_tokens: ideas=%d post=%d; temperature: ideas=%g post=%g\n",
		c.Generation.MaxTokensIdeas, c.Generation.MaxTokensPost, c.Generation.TemperatureIdeas, c.Generation.TemperaturePost)
	fmt.Fprintf(&b, "max_off_topic_attempts=%d session_ttl=%s registry=%s log_level=%s\n",
		c.Moderation.MaxOffTopicAttempts, c.Session.TTL, c.Registry.Driver, c.Log.Level)
	fmt.Fprintf(&b, "save_images=%t folder=%s", c.Images.SaveLocally, c.Images.Folder)
	return b.String()
}
