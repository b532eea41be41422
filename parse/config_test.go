package parse

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("PARSE_SERVER_URL", "https://api.example.com")
	t.Setenv("PARSE_APPLICATION_ID", "app-1")
	t.Setenv("PARSE_REST_API_KEY", "key-1")
	t.Setenv("PARSE_HTTP_TIMEOUT", "30s")

	config, err := ConfigFromEnv(context.Background())
	assert.Equal(t, err, nil)
	assert.Equal(t, config.ServerUrl, "https://api.example.com")
	assert.Equal(t, config.ApplicationId, "app-1")
	assert.Equal(t, config.RestApiKey, "key-1")
	assert.Equal(t, config.HttpTimeout, 30*time.Second)

	// unset timeouts fall back to the defaults
	assert.Equal(t, config.HttpConnectTimeout, defaultHttpConnectTimeout)
	assert.Equal(t, config.HttpTlsTimeout, defaultHttpTlsTimeout)
}

func TestConfigFromEnvMissingCredentials(t *testing.T) {
	t.Setenv("PARSE_SERVER_URL", "https://api.example.com")
	t.Setenv("PARSE_APPLICATION_ID", "")
	t.Setenv("PARSE_REST_API_KEY", "")

	_, err := ConfigFromEnv(context.Background())
	assert.NotEqual(t, err, nil)
}

func TestConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parse.yml")
	os.WriteFile(path, []byte(`
server_url: https://api.example.com
application_id: app-1
rest_api_key: key-1
http_timeout: 45s
`), 0o644)

	config, err := ConfigFromFile(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, config.ServerUrl, "https://api.example.com")
	assert.Equal(t, config.ApplicationId, "app-1")
	assert.Equal(t, config.HttpTimeout, 45*time.Second)
	assert.Equal(t, config.HttpConnectTimeout, defaultHttpConnectTimeout)
}

func TestConfigFromFileErrors(t *testing.T) {
	_, err := ConfigFromFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.NotEqual(t, err, nil)

	malformed := filepath.Join(t.TempDir(), "parse.yml")
	os.WriteFile(malformed, []byte("server_url: [not: valid"), 0o644)
	_, err = ConfigFromFile(malformed)
	assert.NotEqual(t, err, nil)

	// a syntactically valid file still needs the credentials
	incomplete := filepath.Join(t.TempDir(), "incomplete.yml")
	os.WriteFile(incomplete, []byte("server_url: https://api.example.com\n"), 0o644)
	_, err = ConfigFromFile(incomplete)
	assert.NotEqual(t, err, nil)
}

func TestConfigValidate(t *testing.T) {
	config := &Config{
		ServerUrl:     "not a url",
		ApplicationId: "app-1",
		RestApiKey:    "key-1",
	}
	assert.NotEqual(t, config.Validate(), nil)

	config.ServerUrl = "https://api.example.com"
	assert.Equal(t, config.Validate(), nil)
}
