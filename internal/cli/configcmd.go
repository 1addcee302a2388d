package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/watcherhq/watcher/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file and report the resolved settings",
	Run:   runConfigCheck,
}

func init() {
	configCmd.AddCommand(configCheckCmd)
}

func runConfigCheck(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config check: %v\n", err)
		os.Exit(1)
	}

	problems := validateConfig(cfg)

	printHeader("Config Check")
	path, _ := config.ConfigPath()
	fmt.Printf("config file:      %s\n", path)
	fmt.Printf("database path:    %s\n", expandPath(cfg.Paths.DatabasePath))
	fmt.Printf("layers dir:       %s\n", expandPath(cfg.Paths.LayersDir))
	fmt.Printf("templates dir:    %s\n", expandPath(cfg.Paths.TemplatesDir))
	fmt.Printf("self-concept dir: %s\n", expandPath(cfg.Paths.SelfConceptDir))
	fmt.Printf("retrieval profiles: %d\n", len(cfg.Retrieval.Profiles))
	fmt.Printf("budget groups:      %d\n", len(cfg.Salience.BudgetGroups))

	if len(problems) == 0 {
		fmt.Println("status: ok")
		return
	}
	fmt.Println("status: invalid")
	for _, p := range problems {
		fmt.Printf("  - %s\n", p)
	}
	os.Exit(1)
}

// validateConfig checks the invariants the salience ledger and retrieval
// profile table depend on at runtime, surfaced here rather than failing
// deep inside a layer run.
func validateConfig(cfg *config.Config) []string {
	var problems []string

	sum := 0.0
	for _, frac := range cfg.Salience.BudgetGroups {
		sum += frac
	}
	if len(cfg.Salience.BudgetGroups) > 0 && (sum < 0.99 || sum > 1.01) {
		problems = append(problems, fmt.Sprintf("salience.budgetGroups fractions sum to %.3f, want 1.0", sum))
	}
	if cfg.Salience.SelfBudget <= 0 {
		problems = append(problems, "salience.selfBudget must be positive")
	}
	if cfg.Salience.DecayThresholdDays <= 0 {
		problems = append(problems, "salience.decayThresholdDays must be positive")
	}
	for name, profile := range cfg.Retrieval.Profiles {
		if profile.RecencyWeight < 0 || profile.RecencyWeight > 1 {
			problems = append(problems, fmt.Sprintf("retrieval profile %q: recencyWeight out of [0,1]", name))
		}
	}
	if cfg.Paths.DatabasePath == "" {
		problems = append(problems, "paths.databasePath is empty")
	}
	return problems
}
