package cli

import (
	"fmt"
	"os"

	"github.com/watcherhq/watcher/internal/config"
	"github.com/watcherhq/watcher/internal/layer"
	"github.com/watcherhq/watcher/internal/ledger"
	"github.com/watcherhq/watcher/internal/provider"
	"github.com/watcherhq/watcher/internal/reflect"
	"github.com/watcherhq/watcher/internal/store"
)

// app bundles the components every command that touches the core needs,
// opened once per invocation and closed by the caller.
type app struct {
	cfg  *config.Config
	st   *store.Store
	lg   *ledger.Ledger
	exec *layer.Executor
	refl *reflect.Scheduler
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openAppWithConfig(cfg)
}

func openAppWithConfig(cfg *config.Config) (*app, error) {
	dbPath := expandPath(cfg.Paths.DatabasePath)
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", dbPath, err)
	}

	lg := ledger.New(st, cfg.Salience)
	exec := layer.New(st, lg, cfg, func(model string) (provider.LLMProvider, error) {
		return provider.ResolveModelString(cfg, model)
	})

	rcfg := cfg.Reflect
	if rcfg.LockDir == "" {
		rcfg.LockDir = os.TempDir()
	}
	refl := reflect.New(rcfg, st, lg, exec, expandPath(cfg.Paths.LayersDir), expandPath(cfg.Paths.TemplatesDir))

	return &app{cfg: cfg, st: st, lg: lg, exec: exec, refl: refl}, nil
}

func (a *app) Close() error {
	return a.st.Close()
}

// expandPath resolves a leading "~" against the user's home directory,
// the same convention internal/config.resolveHomeDir follows for config paths.
func expandPath(p string) string {
	if len(p) == 0 || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return home + p[1:]
}
