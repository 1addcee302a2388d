package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/watcherhq/watcher/internal/config"
	"github.com/watcherhq/watcher/internal/store"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect and migrate the persistence layer",
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report database health and schema version",
	Run:   runDBStatus,
}

var dbMigrateTarget int

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending forward-only migrations",
	Run:   runDBMigrate,
}

func init() {
	dbMigrateCmd.Flags().IntVar(&dbMigrateTarget, "target", 0, "stop after this migration version (0 = latest)")
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbMigrateCmd)
}

func runDBStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "db status: load config: %v\n", err)
		os.Exit(1)
	}
	dbPath := expandPath(cfg.Paths.DatabasePath)
	st, err := store.OpenNoMigrate(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db status: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	printHeader("Database Status")
	fmt.Printf("path:               %s\n", dbPath)
	if err := st.Health(); err != nil {
		fmt.Printf("health:             unhealthy: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("health:             ok")
	current, err := st.CurrentVersion()
	if err != nil {
		fmt.Fprintf(os.Stderr, "db status: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("schema version:     %d\n", current)
	fmt.Printf("latest known:       %d\n", store.LatestVersion())
	if current < store.LatestVersion() {
		fmt.Println("pending migrations: yes (run 'watcher db migrate')")
	} else {
		fmt.Println("pending migrations: none")
	}
}

func runDBMigrate(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "db migrate: load config: %v\n", err)
		os.Exit(1)
	}
	dbPath := expandPath(cfg.Paths.DatabasePath)
	st, err := store.OpenNoMigrate(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db migrate: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	before, err := st.CurrentVersion()
	if err != nil {
		fmt.Fprintf(os.Stderr, "db migrate: %v\n", err)
		os.Exit(1)
	}
	if err := st.MigrateTo(dbMigrateTarget); err != nil {
		fmt.Fprintf(os.Stderr, "db migrate: %v\n", err)
		os.Exit(1)
	}
	after, err := st.CurrentVersion()
	if err != nil {
		fmt.Fprintf(os.Stderr, "db migrate: %v\n", err)
		os.Exit(1)
	}
	printHeader("Database Migrate")
	fmt.Printf("applied %d migration(s): %d -> %d\n", after-before, before, after)
}
