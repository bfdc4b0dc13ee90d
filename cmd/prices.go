package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/solarcharge/infra/prices"
)

var chartOut string

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Wholesale price commands",
}

var pricesChartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Fetch the upcoming prices and render them as an HTML chart",
	RunE:  runPricesChart,
}

func init() {
	pricesChartCmd.Flags().StringVar(&chartOut, "out", "prices.html", "output file")
	pricesCmd.AddCommand(pricesChartCmd)
	rootCmd.AddCommand(pricesCmd)
}

func runPricesChart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Prices.Auth.Validate(); err != nil {
		return err
	}
	from := time.Now().UTC().Truncate(time.Hour)
	resp, err := prices.NewClient(cfg.Prices).Fetch(commandContext(cmd), from, from.Add(cfg.Prices.LookAhead))
	if err != nil {
		return err
	}
	html, err := resp.PriceChartHTML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(chartOut, []byte(html), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "chart written to %s\n", chartOut)
	return nil
}
