package main

import (
	"fmt"

	"github.com/quantsmith/quantsmith/internal/catalog"
	"github.com/quantsmith/quantsmith/internal/ui"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [root]",
	Short: "List manifested output directories",
	Long: `Walks a directory tree and shows every output directory that holds a
model.json manifest, with its artifact precision, size and latency.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	out := cmd.OutOrStdout()

	cat, err := catalog.New(root, log.StandardLogger())
	if err != nil {
		return err
	}

	entries := cat.List()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No manifests found.")
		fmt.Fprintln(out, "\nUse 'quantsmith convert --weights <checkpoint>' to produce one.")
		return nil
	}

	fmt.Fprintf(out, "%s %s %s %s %s %s\n",
		ui.PadRight("DIRECTORY", 24), ui.PadRight("FILE", 28), ui.PadRight("PREC", 5),
		ui.PadRight("SIZE", 10), ui.PadRight("MEDIAN", 12), "SIGNED")

	var total int64
	for _, e := range entries {
		size := "missing"
		if e.Size >= 0 {
			size = ui.FormatBytes(e.Size)
			total += e.Size
		}

		median := "-"
		if e.Manifest.Metrics != nil {
			median = ui.FormatMillis(e.Manifest.Metrics.MedianMs)
		}

		signed := "no"
		if e.Signed() {
			signed = "yes"
		}

		fmt.Fprintf(out, "%s %s %s %s %s %s\n",
			ui.PadRight(ui.TruncateString(e.Name, 24), 24),
			ui.PadRight(ui.TruncateString(e.Manifest.File, 28), 28),
			ui.PadRight(string(e.Precision), 5),
			ui.PadRight(size, 10),
			ui.PadRight(median, 12),
			signed)
	}

	fmt.Fprintf(out, "\nTotal: %d manifests, %s\n", len(entries), ui.FormatBytes(total))
	return nil
}
