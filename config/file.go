package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pevans/archivist/auth"
	"github.com/pevans/archivist/extract"
)

// FileConfig represents the structure of ~/.archivist/config.yaml. Unset
// fields keep the value from the layer below.
type FileConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Limit       *int     `yaml:"limit"`
	Premium     *bool    `yaml:"premium"`
	Headless    *bool    `yaml:"headless"`
	BrowserPath string   `yaml:"browser_path"`
	RemoteURL   string   `yaml:"remote_url"`
	UserAgent   string   `yaml:"user_agent"`
	OutputDir   string   `yaml:"output_dir"`
	Keywords    []string `yaml:"keywords"`

	Timeouts struct {
		Request         string `yaml:"request"`
		Page            string `yaml:"page"`
		PagePoll        string `yaml:"page_poll"`
		Settle          string `yaml:"settle"`
		Element         string `yaml:"element"`
		ChallengeBudget string `yaml:"challenge_budget"`
		ChallengePoll   string `yaml:"challenge_poll"`
		FetchInterval   string `yaml:"fetch_interval"`
	} `yaml:"timeouts"`

	Selectors struct {
		Extract   extract.Selectors `yaml:"extract"`
		SignIn    auth.Selectors    `yaml:"sign_in"`
		SignInURL string            `yaml:"sign_in_url"`
		Ready     []string          `yaml:"ready"`
		Loading   []string          `yaml:"loading"`
		Paywall   []string          `yaml:"paywall"`
	} `yaml:"selectors"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Journal string `yaml:"journal"`
}

// DefaultPath returns ~/.archivist/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".archivist", "config.yaml"), nil
}

// LoadFile loads configuration from path. Returns nil if the file doesn't
// exist (not an error). Returns error if the file exists but cannot be
// parsed.
func LoadFile(path string) (*FileConfig, error) {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil // File doesn't exist -- not an error
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &fc, nil
}

// Apply layers the file over cfg.
func (fc *FileConfig) Apply(cfg Config) (Config, error) {
	if fc == nil {
		return cfg, nil
	}

	setString(&cfg.BaseURL, fc.BaseURL)
	setString(&cfg.BrowserPath, fc.BrowserPath)
	setString(&cfg.RemoteURL, fc.RemoteURL)
	setString(&cfg.UserAgent, fc.UserAgent)
	setString(&cfg.OutputDir, fc.OutputDir)
	setString(&cfg.SignInURL, fc.Selectors.SignInURL)
	setString(&cfg.Log.Level, fc.Log.Level)
	setString(&cfg.Log.Format, fc.Log.Format)
	setString(&cfg.JournalPath, fc.Journal)
	if fc.Limit != nil {
		cfg.Limit = *fc.Limit
	}
	if fc.Premium != nil {
		cfg.Premium = *fc.Premium
	}
	if fc.Headless != nil {
		cfg.Headless = *fc.Headless
	}
	if fc.Keywords != nil {
		cfg.Keywords = fc.Keywords
	}

	// Durations are written as Go duration strings ("30s", "2m")
	durations := []struct {
		name  string
		raw   string
		value *time.Duration
	}{
		{"timeouts.request", fc.Timeouts.Request, &cfg.RequestTimeout},
		{"timeouts.page", fc.Timeouts.Page, &cfg.PageTimeout},
		{"timeouts.page_poll", fc.Timeouts.PagePoll, &cfg.PagePoll},
		{"timeouts.settle", fc.Timeouts.Settle, &cfg.Settle},
		{"timeouts.element", fc.Timeouts.Element, &cfg.ElementTimeout},
		{"timeouts.challenge_budget", fc.Timeouts.ChallengeBudget, &cfg.ChallengeBudget},
		{"timeouts.challenge_poll", fc.Timeouts.ChallengePoll, &cfg.ChallengePoll},
		{"timeouts.fetch_interval", fc.Timeouts.FetchInterval, &cfg.FetchInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.value = parsed
	}

	// Selector lists replace the defaults wholesale
	ex := fc.Selectors.Extract
	setList(&cfg.ExtractSelectors.Title, ex.Title)
	setList(&cfg.ExtractSelectors.Subtitle, ex.Subtitle)
	setList(&cfg.ExtractSelectors.Date, ex.Date)
	setList(&cfg.ExtractSelectors.LikeCount, ex.LikeCount)
	setList(&cfg.ExtractSelectors.Content, ex.Content)

	si := fc.Selectors.SignIn
	setList(&cfg.AuthSelectors.PasswordEntry, si.PasswordEntry)
	setList(&cfg.AuthSelectors.EmailField, si.EmailField)
	setList(&cfg.AuthSelectors.PasswordField, si.PasswordField)
	setList(&cfg.AuthSelectors.SubmitButton, si.SubmitButton)
	setList(&cfg.AuthSelectors.ErrorIndicator, si.ErrorIndicator)

	setList(&cfg.ReadySelectors, fc.Selectors.Ready)
	setList(&cfg.LoadingSelectors, fc.Selectors.Loading)
	setList(&cfg.PaywallSelectors, fc.Selectors.Paywall)

	return cfg, nil
}

// ApplyEnv fills the credentials from envFile (if present) and then from
// the process environment, which wins.
func ApplyEnv(cfg Config, envFile string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	// .env first; the process environment overrides it
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
		setString(&cfg.Email, values[EnvEmail])
		setString(&cfg.Password, values[EnvPassword])
	}

	setString(&cfg.Email, getenv(EnvEmail))
	setString(&cfg.Password, getenv(EnvPassword))
	return cfg, nil
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped when empty or missing) and the environment, reading .env from
// the working directory.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return cfg, err
		}
		if cfg, err = fc.Apply(cfg); err != nil {
			return cfg, err
		}
	}

	return ApplyEnv(cfg, ".env", nil)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setList(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = v
	}
}
