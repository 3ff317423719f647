package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir  = ".voxsh"
	DefaultConfigFile = "config.yaml"
	DefaultLogFile    = "audit.jsonl"
	DefaultIndexDir   = "embeddings"
)

// Config is the startup configuration of a voxsh session. It is read once;
// nothing in it changes while a session is running.
type Config struct {
	ConfigDir string `yaml:"-"`
	LogPath   string `yaml:"audit_log"`
	LogLevel  string `yaml:"log_level"`

	Provider  ProviderConfig  `yaml:"provider"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Validator ValidatorConfig `yaml:"validator"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Speech    SpeechConfig    `yaml:"speech"`
}

// ProviderConfig selects the language-model backend used for both script
// generation and output interpretation.
type ProviderConfig struct {
	// Name is "gemini" or "groq".
	Name           string        `yaml:"name"`
	Model          string        `yaml:"model"`
	InterpretModel string        `yaml:"interpret_model"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"-"`
	Timeout        time.Duration `yaml:"timeout"`
}

// RetrievalConfig points at the prebuilt embedding index.
type RetrievalConfig struct {
	IndexDir          string `yaml:"index_dir"`
	TopK              int    `yaml:"top_k"`
	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`
	EmbeddingBaseURL  string `yaml:"embedding_base_url"`
	// Timeout bounds one embedding request. Zero uses provider.timeout.
	Timeout time.Duration `yaml:"timeout"`
	// Disabled runs the pipeline without retrieved context.
	Disabled bool `yaml:"disabled"`
}

// ValidatorConfig controls the two validation gates.
type ValidatorConfig struct {
	AllowedCommands []string `yaml:"allowed_commands"`
	// Strict additionally checks every command name found in the parsed
	// script, not just the leading token of each line.
	Strict     bool   `yaml:"strict"`
	Shellcheck string `yaml:"shellcheck"`
	Dialect    string `yaml:"dialect"`
}

// SandboxConfig controls the isolation wrapper.
type SandboxConfig struct {
	// Launcher is "firejail" or "unshare".
	Launcher string        `yaml:"launcher"`
	Firejail string        `yaml:"firejail"`
	Shell    string        `yaml:"shell"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SpeechConfig configures the capture and text-to-speech collaborators.
type SpeechConfig struct {
	// TTSCommand is an external program that speaks its last argument,
	// e.g. ["espeak"] or ["spd-say", "--wait"]. Empty means print only.
	TTSCommand []string `yaml:"tts_command"`
	// STTCommand records one utterance and prints the transcript. Empty
	// disables spoken input in the terminal interface.
	STTCommand []string `yaml:"stt_command"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Provider: ProviderConfig{
			Name:    "gemini",
			Timeout: 60 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Validator: ValidatorConfig{
			Strict:     true,
			Shellcheck: "shellcheck",
			Dialect:    "bash",
		},
		Sandbox: SandboxConfig{
			Launcher: "firejail",
			Firejail: "firejail",
			Shell:    "bash",
			Timeout:  30 * time.Second,
		},
	}
}

// Load reads configPath (or ~/.voxsh/config.yaml when empty), applies
// defaults for anything unset and picks up API keys from the environment.
func Load(configPath, logPath string) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	configDir := filepath.Join(homeDir, DefaultConfigDir)
	if err := ensureDir(configDir); err != nil {
		return nil, err
	}

	if configPath == "" {
		configPath = filepath.Join(configDir, DefaultConfigFile)
	}

	cfg := Default()
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	cfg.ConfigDir = configDir
	if logPath != "" {
		cfg.LogPath = logPath
	}
	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(configDir, DefaultLogFile)
	}
	if cfg.Retrieval.IndexDir == "" {
		cfg.Retrieval.IndexDir = filepath.Join(configDir, DefaultIndexDir)
	}
	cfg.Retrieval.IndexDir = expandHome(cfg.Retrieval.IndexDir, homeDir)
	cfg.LogPath = expandHome(cfg.LogPath, homeDir)

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	switch c.Provider.Name {
	case "gemini":
		c.Provider.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
	case "groq":
		c.Provider.APIKey = firstEnv("GROQ_API_KEY")
	}
}

// EmbeddingAPIKey returns the key for an embedding provider, which may differ
// from the generation provider.
func EmbeddingAPIKey(provider string) string {
	switch provider {
	case "gemini":
		return firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
	case "groq":
		return firstEnv("GROQ_API_KEY")
	default:
		return firstEnv("OPENAI_API_KEY")
	}
}

// Validate rejects settings the session cannot start with.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "gemini", "groq":
	default:
		return fmt.Errorf("unsupported provider %q (want gemini or groq)", c.Provider.Name)
	}
	switch c.Sandbox.Launcher {
	case "firejail", "unshare":
	default:
		return fmt.Errorf("unsupported sandbox launcher %q (want firejail or unshare)", c.Sandbox.Launcher)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox.timeout must be positive, got %s", c.Sandbox.Timeout)
	}
	return nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

func expandHome(path, homeDir string) string {
	if strings.HasPrefix(path, "~/") && homeDir != "" {
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
