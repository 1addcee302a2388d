package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/watcherhq/watcher/internal/layer"
)

var layerCmd = &cobra.Command{
	Use:   "layer",
	Short: "Inspect and validate layer definitions",
}

var layerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every loaded layer definition",
	Run:   runLayerList,
}

var layerValidateCmd = &cobra.Command{
	Use:   "validate <name>",
	Short: "Validate one layer file by name",
	Args:  cobra.ExactArgs(1),
	Run:   runLayerValidate,
}

func init() {
	layerCmd.AddCommand(layerListCmd)
	layerCmd.AddCommand(layerValidateCmd)
}

func runLayerList(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "layer list: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.refl.LoadLayers(); err != nil {
		fmt.Fprintf(os.Stderr, "layer list: %v\n", err)
		os.Exit(1)
	}

	printHeader("Layers")
	for _, l := range a.refl.Layers() {
		fmt.Printf("%-20s category=%-8s schedule=%-14s threshold=%-4d targets<=%d\n",
			l.Name, l.TargetCategory, orDash(l.Schedule), l.TriggerThreshold, l.MaxTargets)
	}
}

func runLayerValidate(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "layer validate: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	name := args[0]
	path := layerFilePath(expandPath(a.cfg.Paths.LayersDir), name)
	l, err := layer.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "layer validate %s: %v\n", name, err)
		os.Exit(1)
	}
	if err := l.Validate(expandPath(a.cfg.Paths.TemplatesDir)); err != nil {
		fmt.Fprintf(os.Stderr, "layer validate %s: invalid: %v\n", name, err)
		os.Exit(1)
	}
	printHeader("Layer Validate")
	fmt.Printf("%s: ok (%d nodes, content_hash=%s)\n", l.Name, len(l.Nodes), l.ContentHash)
}

// layerFilePath resolves a bare layer name (the filename without
// extension, or a full path) against the layers directory.
func layerFilePath(layersDir, name string) string {
	if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
			return name
		}
		return filepath.Join(layersDir, name)
	}
	return filepath.Join(layersDir, name+".yaml")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
