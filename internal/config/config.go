// Package config provides application configuration management using koanf
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all configuration for the application
type Config struct {
	// Source document store
	Drive DriveConfig `koanf:"drive"`

	// Authorization and identity services
	Pangea PangeaConfig `koanf:"pangea"`

	// Embeddings and chat model
	OpenAI OpenAIConfig `koanf:"openai"`

	// Vector store database
	Database DatabaseConfig `koanf:"database"`

	// Retrieval behavior
	Retrieval RetrievalConfig `koanf:"retrieval"`
}

// DriveConfig holds source document store configuration
type DriveConfig struct {
	FolderID    string `koanf:"folder_id"`
	BaseURL     string `koanf:"base_url"`
	AccessToken string `koanf:"access_token"`
}

// PangeaConfig holds the authorization and login service configuration
type PangeaConfig struct {
	Domain           string `koanf:"domain"`
	AuthZToken       string `koanf:"authz_token"`
	AuthNClientToken string `koanf:"authn_client_token"`
	AuthNHostedLogin string `koanf:"authn_hosted_login"`
	CallbackAddr     string `koanf:"callback_addr"`
}

// AuthZBaseURL returns the authorization service endpoint for the
// configured domain.
func (p PangeaConfig) AuthZBaseURL() string {
	return fmt.Sprintf("https://authz.%s", p.Domain)
}

// AuthNBaseURL returns the identity service endpoint for the
// configured domain.
func (p PangeaConfig) AuthNBaseURL() string {
	return fmt.Sprintf("https://authn.%s", p.Domain)
}

// OpenAIConfig holds the OpenAI-compatible API configuration
type OpenAIConfig struct {
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	Model          string `koanf:"model"`
	EmbeddingModel string `koanf:"embedding_model"`
}

// DatabaseConfig holds the vector store database configuration
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// RetrievalConfig holds retrieval and formatting settings
type RetrievalConfig struct {
	// Mode selects the search tool's snippet formatting. Validity is
	// checked at first use by the tool itself.
	Mode string `koanf:"mode"`
	// NumResults caps the search tool's candidate sequence. Zero or
	// negative means no cap.
	NumResults int `koanf:"num_results"`
	// TopK is the ranked retriever's result budget per query.
	TopK int `koanf:"top_k"`
}

// envKeys maps recognized environment variables onto config keys.
var envKeys = map[string]string{
	"PANGEA_DOMAIN":             "pangea.domain",
	"PANGEA_AUTHZ_TOKEN":        "pangea.authz_token",
	"PANGEA_AUTHN_CLIENT_TOKEN": "pangea.authn_client_token",
	"PANGEA_AUTHN_HOSTED_LOGIN": "pangea.authn_hosted_login",
	"OPENAI_API_KEY":            "openai.api_key",
	"DRIVE_ACCESS_TOKEN":        "drive.access_token",
}

// Load loads configuration from multiple sources with precedence:
// 1. Defaults
// 2. config.yaml / config.json (if they exist)
// 3. Environment variables
// 4. Command-line flags (highest precedence)
func Load(args []string) (*Config, error) {
	k := koanf.New(".")

	setDefaults(k)
	loadConfigFiles(k)

	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			if mapped, ok := envKeys[key]; ok {
				return mapped, value
			}
			return "", nil
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	f := newFlagSet()
	if err := f.Parse(args); err != nil {
		return nil, fmt.Errorf("error parsing flags: %w", err)
	}
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("error loading flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// newFlagSet declares the CLI flag surface. Flag names double as
// config keys.
func newFlagSet() *pflag.FlagSet {
	f := pflag.NewFlagSet("authz-rag", pflag.ContinueOnError)
	f.String("drive.folder_id", "", "ID of the source store folder to fetch documents from")
	f.String("pangea.domain", "", "Pangea API domain")
	f.String("openai.model", "", "Chat model name")
	f.String("retrieval.mode", "", "Search tool formatting mode (snippets, snippets-markdown, documents, documents-markdown)")
	f.Int("retrieval.num_results", 0, "Search tool result cap (0 for no cap)")
	f.Int("retrieval.top_k", 0, "Ranked retrieval result budget")
	return f
}

// setDefaults sets default configuration values
func setDefaults(k *koanf.Koanf) {
	defaults := map[string]interface{}{
		"drive.base_url": "https://www.googleapis.com/drive/v3",

		"pangea.domain":        "aws.us.pangea.cloud",
		"pangea.callback_addr": "localhost:3000",

		"openai.base_url":        "https://api.openai.com/v1",
		"openai.model":           "gpt-4o-mini",
		"openai.embedding_model": "text-embedding-3-small",

		"database.path": "vector_store.db",

		"retrieval.mode":        "snippets",
		"retrieval.num_results": 0,
		"retrieval.top_k":       4,
	}

	for key, value := range defaults {
		_ = k.Set(key, value) // Ignore error for setting defaults
	}
}

// loadConfigFiles loads configuration from files
func loadConfigFiles(k *koanf.Koanf) {
	if _, err := os.Stat("config.yaml"); err == nil {
		if err := k.Load(file.Provider("config.yaml"), yaml.Parser()); err != nil {
			log.Printf("Warning: failed to load config.yaml: %v", err)
		}
	}

	if _, err := os.Stat("config.json"); err == nil {
		if err := k.Load(file.Provider("config.json"), json.Parser()); err != nil {
			log.Printf("Warning: failed to load config.json: %v", err)
		}
	}
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Drive.FolderID == "" {
		return fmt.Errorf("drive folder id is required")
	}
	if cfg.Drive.AccessToken == "" {
		return fmt.Errorf("drive access token is required")
	}
	if cfg.Pangea.AuthZToken == "" {
		return fmt.Errorf("authorization service token is required")
	}
	if cfg.Pangea.AuthNClientToken == "" {
		return fmt.Errorf("login flow client token is required")
	}
	if cfg.Pangea.AuthNHostedLogin == "" {
		return fmt.Errorf("hosted login URL is required")
	}
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive")
	}
	return nil
}
