package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/solarcharge/core/budget"
)

var budgetFlags struct {
	grid, inverter, batteryPower int
	batterySoC                   float64
	discharge                    bool
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Compute the power budget for the given site readings",
	RunE:  runBudget,
}

func init() {
	f := budgetCmd.Flags()
	f.IntVar(&budgetFlags.grid, "grid", 0, "grid overage in W, positive when exporting")
	f.IntVar(&budgetFlags.inverter, "inverter", 0, "inverter AC power in W")
	f.Float64Var(&budgetFlags.batterySoC, "battery-soc", 0, "home battery state of charge in %")
	f.IntVar(&budgetFlags.batteryPower, "battery-power", 0, "home battery charge power in W")
	f.BoolVar(&budgetFlags.discharge, "discharge", false, "allow discharging the home battery")
	rootCmd.AddCommand(budgetCmd)
}

func runBudget(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s := cfg.Budget
	in := budget.Input{
		Buffer:                   s.Buffer,
		BatteryMinSoC:            s.BatteryMinSoC,
		BatteryTargetChargePower: s.BatteryTargetChargePower,
		MaxInverterACPower:       s.MaxInverterACPower,
		DischargeAllowed:         budgetFlags.discharge,
		BatteryDischargePower:    s.BatteryDischargePower,
	}
	f := cmd.Flags()
	if f.Changed("grid") {
		in.GridOverage = &budgetFlags.grid
	}
	if f.Changed("inverter") {
		in.InverterPower = &budgetFlags.inverter
	}
	if f.Changed("battery-soc") {
		in.BatterySoC = &budgetFlags.batterySoC
	}
	if f.Changed("battery-power") {
		in.BatteryPower = &budgetFlags.batteryPower
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d W\n", budget.Compute(in))
	return nil
}
