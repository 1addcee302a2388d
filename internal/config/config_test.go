package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.Name != "anthropic/claude-sonnet-4-5" {
		t.Errorf("expected default model anthropic/claude-sonnet-4-5, got %s", cfg.Model.Name)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected gateway host 127.0.0.1, got %s", cfg.Gateway.Host)
	}

	if cfg.Gateway.Port != 18790 {
		t.Errorf("expected gateway port 18790, got %d", cfg.Gateway.Port)
	}

	if !cfg.Tools.Exec.RestrictToWorkspace {
		t.Error("expected RestrictToWorkspace to be true by default")
	}

	if cfg.Tools.Exec.Timeout != 60*time.Second {
		t.Errorf("expected exec timeout 60s, got %v", cfg.Tools.Exec.Timeout)
	}
	if cfg.Tools.Subagents.MaxConcurrent != 8 {
		t.Errorf("expected subagents maxConcurrent 8, got %d", cfg.Tools.Subagents.MaxConcurrent)
	}
	if cfg.Tools.Subagents.ArchiveAfterMinutes != 60 {
		t.Errorf("expected subagents archiveAfterMinutes 60, got %d", cfg.Tools.Subagents.ArchiveAfterMinutes)
	}
	if cfg.Salience.SelfBudget != 5 {
		t.Errorf("expected salience selfBudget 5, got %v", cfg.Salience.SelfBudget)
	}
	if cfg.Salience.BudgetGroups["social"] != 0.35 {
		t.Errorf("expected salience budgetGroups[social] 0.35, got %v", cfg.Salience.BudgetGroups["social"])
	}
	if cfg.Retrieval.Profiles["balanced"].RecencyWeight != 0.5 {
		t.Errorf("expected retrieval balanced recencyWeight 0.5, got %v", cfg.Retrieval.Profiles["balanced"].RecencyWeight)
	}
	if cfg.Executor.MaxRetries != 3 {
		t.Errorf("expected executor maxRetries 3, got %d", cfg.Executor.MaxRetries)
	}
	if cfg.Reflect.Enabled {
		t.Error("expected reflect disabled by default")
	}
	if cfg.Reflect.TickInterval != 60*time.Second {
		t.Errorf("expected reflect tickInterval 60s, got %v", cfg.Reflect.TickInterval)
	}
}

func TestLoadDefaults(t *testing.T) {
	// Temporarily set HOME to a non-existent directory
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", "/tmp/nonexistent-watcher-test")
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Model.MaxTokens != 8192 {
		t.Errorf("expected maxTokens 8192, got %d", cfg.Model.MaxTokens)
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp config
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ConfigDir)
	os.MkdirAll(configDir, 0755)
	configFile := filepath.Join(configDir, "config.json")

	configJSON := `{
		"model": {
			"name": "openai/gpt-4",
			"maxTokens": 4096
		},
		"gateway": {
			"port": 9999
		}
	}`
	os.WriteFile(configFile, []byte(configJSON), 0600)

	// Temporarily set HOME
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Model.Name != "openai/gpt-4" {
		t.Errorf("expected model openai/gpt-4, got %s", cfg.Model.Name)
	}

	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}
}

func TestLegacyConfigMigration(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ConfigDir)
	os.MkdirAll(configDir, 0755)
	configFile := filepath.Join(configDir, "config.json")

	// Old-format config with "agents.defaults"
	legacyJSON := `{
		"agents": {
			"defaults": {
				"workspace": "/custom/workspace",
				"workRepoPath": "/custom/work-repo",
				"systemRepoPath": "/custom/system-repo",
				"model": "gpt-4o",
				"maxTokens": 4096,
				"temperature": 0.5,
				"maxToolIterations": 10
			}
		},
		"gateway": {
			"port": 18790
		}
	}`
	os.WriteFile(configFile, []byte(legacyJSON), 0600)

	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Model fields should be migrated from agents.defaults
	if cfg.Model.Name != "gpt-4o" {
		t.Errorf("expected model gpt-4o after migration, got %s", cfg.Model.Name)
	}
	if cfg.Model.MaxTokens != 4096 {
		t.Errorf("expected maxTokens 4096 after migration, got %d", cfg.Model.MaxTokens)
	}
	if cfg.Model.Temperature != 0.5 {
		t.Errorf("expected temperature 0.5 after migration, got %f", cfg.Model.Temperature)
	}
	if cfg.Model.MaxToolIterations != 10 {
		t.Errorf("expected maxToolIterations 10 after migration, got %d", cfg.Model.MaxToolIterations)
	}

	// Path fields should be migrated
	if cfg.Paths.SystemRepoPath != "/custom/system-repo" {
		t.Errorf("expected systemRepoPath /custom/system-repo after migration, got %s", cfg.Paths.SystemRepoPath)
	}
	if cfg.Paths.WorkRepoPath != "/custom/work-repo" {
		t.Errorf("expected workRepoPath /custom/work-repo after migration, got %s", cfg.Paths.WorkRepoPath)
	}

	// Verify the file was rewritten in new format (no more "agents" key)
	rewritten, _ := os.ReadFile(configFile)
	if strings.Contains(string(rewritten), `"agents"`) {
		t.Error("expected migrated config to not contain old 'agents' key")
	}
	if !strings.Contains(string(rewritten), `"paths"`) {
		t.Error("expected migrated config to contain new 'paths' key")
	}
	if !strings.Contains(string(rewritten), `"model"`) {
		t.Error("expected migrated config to contain new 'model' key")
	}
}

func TestEnvOverride(t *testing.T) {
	// Set env var with correct prefix for nested struct
	os.Setenv("WATCHER_GATEWAY_HOST", "0.0.0.0")
	os.Setenv("WATCHER_GATEWAY_PORT", "8080")
	defer func() {
		os.Unsetenv("WATCHER_GATEWAY_HOST")
		os.Unsetenv("WATCHER_GATEWAY_PORT")
	}()

	// Use temp home with no config file
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0 from env, got %s", cfg.Gateway.Host)
	}

	if cfg.Gateway.Port != 8080 {
		t.Errorf("expected port 8080 from env, got %d", cfg.Gateway.Port)
	}
}

func TestEnvOverrideSalienceUsesBarePrefix(t *testing.T) {
	os.Setenv("WATCHER_SALIENCE_SELF_BUDGET", "9.5")
	defer os.Unsetenv("WATCHER_SALIENCE_SELF_BUDGET")

	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Salience.SelfBudget != 9.5 {
		t.Errorf("expected salience.selfBudget 9.5 from env, got %v", cfg.Salience.SelfBudget)
	}
}

func TestLoadPerAgentModelOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ConfigDir)
	os.MkdirAll(configDir, 0755)
	configFile := filepath.Join(configDir, "config.json")

	configJSON := `{
		"agents": {
			"list": [
				{
					"id": "main",
					"model": {
						"primary": "claude/claude-opus-4",
						"fallbacks": ["openai/gpt-4.1"]
					}
				}
			]
		}
	}`
	os.WriteFile(configFile, []byte(configJSON), 0600)

	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Agents == nil || len(cfg.Agents.List) != 1 {
		t.Fatalf("expected one agent entry, got %+v", cfg.Agents)
	}
	entry := cfg.Agents.List[0]
	if entry.Model == nil || entry.Model.Primary != "claude/claude-opus-4" {
		t.Fatalf("expected primary model claude/claude-opus-4, got %+v", entry.Model)
	}
	if len(entry.Model.Fallbacks) != 1 || entry.Model.Fallbacks[0] != "openai/gpt-4.1" {
		t.Fatalf("expected one fallback openai/gpt-4.1, got %+v", entry.Model.Fallbacks)
	}
}
