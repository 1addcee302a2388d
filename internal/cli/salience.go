package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var salienceCmd = &cobra.Command{
	Use:   "salience",
	Short: "Inspect and maintain the salience ledger",
}

var salienceDecayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run the decay sweep over every inactive topic",
	Run:   runSalienceDecay,
}

func init() {
	salienceCmd.AddCommand(salienceDecayCmd)
}

func runSalienceDecay(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "salience decay: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	applied, err := a.lg.DecaySweep(time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "salience decay: %v\n", err)
		os.Exit(1)
	}
	printHeader("Salience Decay")
	fmt.Printf("topics decayed: %d\n", applied)
}
