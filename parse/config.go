package parse

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config carries the application credentials and transport settings for a
// Client. Credentials are issued per application by the backend; every
// request carries them as headers.
type Config struct {
	// ServerUrl is the backend base url, without the version prefix.
	ServerUrl string `env:"PARSE_SERVER_URL" validate:"required,url"`

	ApplicationId string `env:"PARSE_APPLICATION_ID" validate:"required"`
	RestApiKey    string `env:"PARSE_REST_API_KEY" validate:"required"`

	HttpTimeout        time.Duration `env:"PARSE_HTTP_TIMEOUT"`
	HttpConnectTimeout time.Duration `env:"PARSE_HTTP_CONNECT_TIMEOUT"`
	HttpTlsTimeout     time.Duration `env:"PARSE_HTTP_TLS_TIMEOUT"`

	// CacheDir overrides the default user cache location for downloaded
	// file data.
	CacheDir string `env:"PARSE_CACHE_DIR"`
}

// the yaml form carries durations as strings, e.g. "30s"
type configFile struct {
	ServerUrl          string `yaml:"server_url"`
	ApplicationId      string `yaml:"application_id"`
	RestApiKey         string `yaml:"rest_api_key"`
	HttpTimeout        string `yaml:"http_timeout"`
	HttpConnectTimeout string `yaml:"http_connect_timeout"`
	HttpTlsTimeout     string `yaml:"http_tls_timeout"`
	CacheDir           string `yaml:"cache_dir"`
}

var configValidate = validator.New()

func (self *Config) Validate() error {
	return configValidate.Struct(self)
}

func (self *Config) applyDefaults() {
	if self.HttpTimeout == 0 {
		self.HttpTimeout = defaultHttpTimeout
	}
	if self.HttpConnectTimeout == 0 {
		self.HttpConnectTimeout = defaultHttpConnectTimeout
	}
	if self.HttpTlsTimeout == 0 {
		self.HttpTlsTimeout = defaultHttpTlsTimeout
	}
}

func ConfigFromEnv(ctx context.Context) (*Config, error) {
	config := &Config{}
	if err := envconfig.Process(ctx, config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	return config, nil
}

func ConfigFromFile(path string) (*Config, error) {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	file := &configFile{}
	if err := yaml.Unmarshal(configBytes, file); err != nil {
		return nil, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	config := &Config{
		ServerUrl:     file.ServerUrl,
		ApplicationId: file.ApplicationId,
		RestApiKey:    file.RestApiKey,
		CacheDir:      file.CacheDir,
	}
	durations := []struct {
		raw string
		out *time.Duration
	}{
		{file.HttpTimeout, &config.HttpTimeout},
		{file.HttpConnectTimeout, &config.HttpConnectTimeout},
		{file.HttpTlsTimeout, &config.HttpTlsTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		duration, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("could not parse config %s: %w", path, err)
		}
		*d.out = duration
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	return config, nil
}
