package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Drive and inspect the reflection scheduler",
}

var reflectTriggerCmd = &cobra.Command{
	Use:   "trigger <layer>",
	Short: "Manually activate a layer, bypassing its schedule and threshold",
	Args:  cobra.ExactArgs(1),
	Run:   runReflectTrigger,
}

var reflectJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List every layer's job-store record",
	Run:   runReflectJobs,
}

func init() {
	reflectCmd.AddCommand(reflectTriggerCmd)
	reflectCmd.AddCommand(reflectJobsCmd)
}

func runReflectTrigger(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "reflect trigger: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.refl.LoadLayers(); err != nil {
		fmt.Fprintf(os.Stderr, "reflect trigger: %v\n", err)
		os.Exit(1)
	}

	name := args[0]
	run, err := a.refl.Trigger(context.Background(), name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reflect trigger %s: %v\n", name, err)
		os.Exit(1)
	}
	printHeader("Reflect Trigger")
	fmt.Printf("layer=%s run_id=%s status=%s insights_created=%d targets_processed=%d/%d\n",
		name, run.ID, run.Status, run.InsightsCreated, run.TargetsProcessed, run.TargetsMatched)
	if run.Status == "failed" {
		os.Exit(1)
	}
}

func runReflectJobs(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "reflect jobs: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	jobs, err := a.st.ListScheduledLayers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "reflect jobs: %v\n", err)
		os.Exit(1)
	}
	printHeader("Reflect Jobs")
	if len(jobs) == 0 {
		fmt.Println("no layer has run yet")
		return
	}
	for _, j := range jobs {
		last := "never"
		if j.LastRunAt != nil {
			last = j.LastRunAt.Format("2006-01-02T15:04:05Z")
		}
		fmt.Printf("%-20s status=%-8s runs=%-4d last_run=%s last_run_id=%s\n",
			j.LayerName, j.LastStatus, j.RunCount, last, j.LastRunID)
	}
}
