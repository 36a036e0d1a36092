// Package config loads segfetch settings from an optional YAML file and
// turns them into fetch jobs and HTTP client settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tanq16/segfetch/internal/utils"
	"gopkg.in/yaml.v3"
)

// FetchDefaults are applied to every job built from this config.
type FetchDefaults struct {
	Workers      int           `yaml:"workers" validate:"min=1"`
	BufferSize   int           `yaml:"buffer_size" validate:"gt=0"`
	ReadDelay    time.Duration `yaml:"read_delay" validate:"gte=0"`
	ChunkTimeout time.Duration `yaml:"chunk_timeout" validate:"gte=0"`
	StrictLength bool          `yaml:"strict_length"`
}

type Config struct {
	Fetch      FetchDefaults          `yaml:"fetch"`
	HTTP       utils.HTTPClientConfig `yaml:"http"`
	Output     string                 `yaml:"output"`
	AWSProfile string                 `yaml:"aws_profile"`
	LogFile    string                 `yaml:"log_file"`
	Debug      bool                   `yaml:"debug"`
}

var validate = validator.New()

func Default() Config {
	return Config{
		Fetch: FetchDefaults{
			Workers:    utils.DefaultWorkers,
			BufferSize: utils.DefaultBufferSize,
			ReadDelay:  utils.DefaultReadDelay,
		},
		HTTP: utils.HTTPClientConfig{
			Timeout:   utils.DefaultTimeout,
			KATimeout: utils.DefaultKATimeout,
			UserAgent: utils.ToolUserAgent,
			Headers:   map[string]string{},
		},
		AWSProfile: "default",
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config file: %w", err)
	}
	if cfg.HTTP.Headers == nil {
		cfg.HTTP.Headers = map[string]string{}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrors validator.ValidationErrors
		if errors.As(err, &verrors) && len(verrors) > 0 {
			return fmt.Errorf("invalid config: %s must satisfy %q", verrors[0].Namespace(), verrors[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Job builds the immutable job for url from the fetch defaults.
func (c Config) Job(url string) utils.FetchJob {
	return utils.FetchJob{
		URL:          url,
		Workers:      c.Fetch.Workers,
		BufferSize:   c.Fetch.BufferSize,
		ReadDelay:    c.Fetch.ReadDelay,
		ChunkTimeout: c.Fetch.ChunkTimeout,
		StrictLength: c.Fetch.StrictLength,
	}
}

// ClientConfig returns the HTTP settings tuned for the given worker count.
func (c Config) ClientConfig(workers int) utils.HTTPClientConfig {
	hc := c.HTTP
	hc.HighThreadMode = workers > 5
	if hc.UserAgent == "randomize" {
		hc.UserAgent = utils.GetRandomUserAgent()
	}
	return hc
}
