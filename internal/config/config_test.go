package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "PROMPTPACK_WORKSPACE_ROOT", "PROMPTPACK_ARCHIVE_NAME", "PROMPTPACK_ARCHIVE_LEVEL",
		"PROMPTPACK_GENERATOR", "PROMPTPACK_MAX_PROMPT_BYTES", "OLLAMA_BASE_URL", "OLLAMA_MODEL",
		"OLLAMA_TIMEOUT", "PROMPTPACK_PROBE_TIMEOUT", "PROMPTPACK_COLLABORATORS_FILE",
		"PROMPTPACK_COLLABORATORS", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
}

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "collaborators.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, ":5000", cfg.Addr())
	assert.Equal(t, DefaultArchiveName, cfg.ArchiveName)
	assert.Equal(t, DefaultArchiveLevel, cfg.ArchiveLevel)
	assert.Equal(t, DefaultGenerator, cfg.Generator)
	assert.Equal(t, DefaultProbeTimeout, cfg.ProbeTimeout)
	assert.Equal(t, DefaultCollaborators(), cfg.Collaborators)
	assert.Equal(t, filepath.Join(os.TempDir(), "promptpack"), cfg.WorkspaceRoot)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("PROMPTPACK_GENERATOR", "Ollama")
	t.Setenv("OLLAMA_TIMEOUT", "30s")
	t.Setenv("PROMPTPACK_PROBE_TIMEOUT", "250ms")
	t.Setenv("PROMPTPACK_COLLABORATORS", "api=http://api:8080/health, web=http://web")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, "ollama", cfg.Generator)
	assert.Equal(t, 30*time.Second, cfg.Ollama.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.ProbeTimeout)
	assert.Equal(t, []Collaborator{
		{Name: "api", URL: "http://api:8080/health"},
		{Name: "web", URL: "http://web"},
	}, cfg.Collaborators)
}

func TestLoadCollaboratorsFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROMPTPACK_COLLABORATORS_FILE", writeYAML(t, `collaborators:
  - name: ollama
    url: http://localhost:11434/api/version
    timeoutMs: 500
    expect: ok
    info: true
  - name: nginx
    url: http://localhost
`))

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Collaborators, 2)

	ollama := cfg.Collaborators[0]
	assert.Equal(t, "ollama", ollama.Name)
	assert.Equal(t, 500*time.Millisecond, ollama.Timeout(time.Second))
	assert.Equal(t, ExpectOK, ollama.Expect)
	assert.True(t, ollama.Info)

	assert.Equal(t, time.Second, cfg.Collaborators[1].Timeout(time.Second))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"bad port":          {"PORT": "70000"},
		"non-numeric port":  {"PORT": "http"},
		"bad level":         {"PROMPTPACK_ARCHIVE_LEVEL": "12"},
		"bad duration":      {"PROMPTPACK_PROBE_TIMEOUT": "soon"},
		"archive name path": {"PROMPTPACK_ARCHIVE_NAME": "../out.zip"},
		"reserved name":     {"PROMPTPACK_COLLABORATORS": "backend=http://x"},
		"duplicate name":    {"PROMPTPACK_COLLABORATORS": "a=http://x,a=http://y"},
		"relative url":      {"PROMPTPACK_COLLABORATORS": "a=/health"},
		"missing equals":    {"PROMPTPACK_COLLABORATORS": "http://x"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadCollaboratorsFileErrors(t *testing.T) {
	_, err := LoadCollaborators(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadCollaborators(writeYAML(t, "collaborators: [oops"))
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("PROMPTPACK_COLLABORATORS_FILE", writeYAML(t, `collaborators:
  - name: x
    url: http://x
    expect: sometimes
`))
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a variable that is set, even to "".
	require.NoError(t, os.Unsetenv("PORT"))
	p := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(p, []byte("PORT=6060\n"), 0o600))

	require.NoError(t, LoadDotEnv(p))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Port)

	err = LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
