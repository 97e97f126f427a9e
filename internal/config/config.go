package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultPort           = 5000
	DefaultArchiveName    = "output.zip"
	DefaultArchiveLevel   = 9
	DefaultGenerator      = "placeholder"
	DefaultMaxPromptBytes = 8000
	DefaultOllamaURL      = "http://ollama:11434"
	DefaultOllamaModel    = "llama3.2"
	DefaultOllamaTimeout  = 120 * time.Second
	DefaultProbeTimeout   = time.Second
)

const (
	ExpectAny = "any"
	ExpectOK  = "ok"
)

type Config struct {
	Port           int
	WorkspaceRoot  string
	ArchiveName    string
	ArchiveLevel   int
	Generator      string
	MaxPromptBytes int
	Ollama         OllamaConfig
	ProbeTimeout   time.Duration
	Collaborators  []Collaborator
	LogLevel       string
	LogFormat      string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Collaborator is one service probed by /status.
type Collaborator struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`

	// TimeoutMs bounds the probe; 0 means the global probe timeout.
	TimeoutMs int `yaml:"timeoutMs"`

	// Expect is "ok" (only 200 counts as reachable) or "any" (any status
	// below 500). Defaults to "any".
	Expect string `yaml:"expect"`

	// Info keeps the decoded JSON body of the probe response.
	Info bool `yaml:"info"`
}

// Timeout returns the probe timeout, falling back to def.
func (c Collaborator) Timeout(def time.Duration) time.Duration {
	if c.TimeoutMs > 0 {
		return time.Duration(c.TimeoutMs) * time.Millisecond
	}
	return def
}

type collaboratorsFile struct {
	Collaborators []Collaborator `yaml:"collaborators"`
}

// DefaultCollaborators is the set probed when nothing is configured.
func DefaultCollaborators() []Collaborator {
	return []Collaborator{
		{Name: "ollama", URL: "http://ollama:11434/api/version", Expect: ExpectOK, Info: true},
		{Name: "frontend", URL: "http://frontend:3000"},
		{Name: "nginx", URL: "http://nginx"},
	}
}

func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Load reads the configuration from the environment. Collaborators come from
// PROMPTPACK_COLLABORATORS_FILE if set, else PROMPTPACK_COLLABORATORS
// ("name=url,..."), else DefaultCollaborators.
func Load() (Config, error) {
	cfg := Config{
		WorkspaceRoot: getenv("PROMPTPACK_WORKSPACE_ROOT", filepath.Join(os.TempDir(), "promptpack")),
		ArchiveName:   getenv("PROMPTPACK_ARCHIVE_NAME", DefaultArchiveName),
		Generator:     strings.ToLower(getenv("PROMPTPACK_GENERATOR", DefaultGenerator)),
		Ollama: OllamaConfig{
			BaseURL: getenv("OLLAMA_BASE_URL", DefaultOllamaURL),
			Model:   getenv("OLLAMA_MODEL", DefaultOllamaModel),
		},
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.Port, err = getenvInt("PORT", DefaultPort); err != nil {
		return Config{}, err
	}
	if cfg.ArchiveLevel, err = getenvInt("PROMPTPACK_ARCHIVE_LEVEL", DefaultArchiveLevel); err != nil {
		return Config{}, err
	}
	if cfg.MaxPromptBytes, err = getenvInt("PROMPTPACK_MAX_PROMPT_BYTES", DefaultMaxPromptBytes); err != nil {
		return Config{}, err
	}
	if cfg.Ollama.Timeout, err = getenvDuration("OLLAMA_TIMEOUT", DefaultOllamaTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ProbeTimeout, err = getenvDuration("PROMPTPACK_PROBE_TIMEOUT", DefaultProbeTimeout); err != nil {
		return Config{}, err
	}

	switch {
	case os.Getenv("PROMPTPACK_COLLABORATORS_FILE") != "":
		cfg.Collaborators, err = LoadCollaborators(os.Getenv("PROMPTPACK_COLLABORATORS_FILE"))
		if err != nil {
			return Config{}, err
		}
	case os.Getenv("PROMPTPACK_COLLABORATORS") != "":
		cfg.Collaborators, err = parseCollaboratorsCSV(os.Getenv("PROMPTPACK_COLLABORATORS"))
		if err != nil {
			return Config{}, err
		}
	default:
		cfg.Collaborators = DefaultCollaborators()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadCollaborators parses a YAML file of the form
//
//	collaborators:
//	  - name: ollama
//	    url: http://ollama:11434/api/version
//	    timeoutMs: 1000
//	    expect: ok
//	    info: true
func LoadCollaborators(path string) ([]Collaborator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("collaborators: read %q: %w", path, err)
	}
	var f collaboratorsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("collaborators: parse yaml: %w", err)
	}
	return f.Collaborators, nil
}

func parseCollaboratorsCSV(raw string) ([]Collaborator, error) {
	var out []Collaborator
	for _, pair := range splitCSV(raw) {
		name, u, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("collaborators: %q is not name=url", pair)
		}
		out = append(out, Collaborator{Name: strings.TrimSpace(name), URL: strings.TrimSpace(u)})
	}
	return out, nil
}

// Validate checks structural constraints.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range [1, 65535]", c.Port)
	}
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("workspace root must not be empty")
	}
	if c.ArchiveName == "" || strings.ContainsAny(c.ArchiveName, `/\`) {
		return fmt.Errorf("archive name %q must be a plain file name", c.ArchiveName)
	}
	if c.ArchiveLevel < -1 || c.ArchiveLevel > 9 {
		return fmt.Errorf("archive level %d is out of range [-1, 9]", c.ArchiveLevel)
	}
	if c.MaxPromptBytes <= 0 {
		return fmt.Errorf("max prompt bytes must be positive")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	seen := make(map[string]bool, len(c.Collaborators))
	for _, col := range c.Collaborators {
		switch col.Name {
		case "":
			return fmt.Errorf("collaborator name must not be empty")
		case "backend", "time":
			return fmt.Errorf("collaborator name %q is reserved", col.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("collaborator %q listed twice", col.Name)
		}
		seen[col.Name] = true
		u, err := url.Parse(col.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("collaborator %q: url %q must be absolute http(s)", col.Name, col.URL)
		}
		if col.TimeoutMs < 0 {
			return fmt.Errorf("collaborator %q: timeoutMs must not be negative", col.Name)
		}
		switch col.Expect {
		case "", ExpectAny, ExpectOK:
		default:
			return fmt.Errorf("collaborator %q: expect %q unknown: want any|ok", col.Name, col.Expect)
		}
	}
	return nil
}

// LoadDotEnv loads path if given, otherwise the nearest .env found walking up
// from the working directory. An explicit path must exist; a missing
// discovered .env is not an error.
func LoadDotEnv(path string) error {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("env file: %w", err)
		}
		return godotenv.Load(path)
	}
	dir, err := os.Getwd()
	if err != nil {
		return nil
	}
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return godotenv.Load(envPath)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
