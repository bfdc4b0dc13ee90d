package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/solarcharge/core/targets"
)

var (
	targetsFile string
	targetsAt   string
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Charging target commands",
}

var targetsNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next occurrence of every target in UTC",
	RunE:  runTargetsNext,
}

func init() {
	targetsNextCmd.Flags().StringVar(&targetsFile, "targets", "targets.yaml", "target definitions file")
	targetsNextCmd.Flags().StringVar(&targetsAt, "at", "", "reference instant (RFC3339), defaults to now")
	targetsCmd.AddCommand(targetsNextCmd)
	rootCmd.AddCommand(targetsCmd)
}

func runTargetsNext(cmd *cobra.Command, args []string) error {
	at := time.Now()
	if targetsAt != "" {
		var err error
		if at, err = time.Parse(time.RFC3339, targetsAt); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}
	defs, err := targets.LoadFile(targetsFile)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tCONSUMER\tSOC\tNEXT")
	for _, t := range defs {
		next, err := targets.NextOccurrence(t, at)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.ID, t.ConsumerID, t.TargetSoC, next.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}
