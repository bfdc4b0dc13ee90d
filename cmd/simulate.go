package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/solarcharge/config"
	"github.com/kilianp07/solarcharge/simulator"
)

var simFlags struct {
	interval   time.Duration
	speedup    float64
	ackLatency time.Duration
	dropRate   float64
	soc        float64
	capacity   float64
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate the configured consumers as MQTT wallboxes",
	RunE:  runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.DurationVar(&simFlags.interval, "interval", 5*time.Second, "telemetry publish interval")
	f.Float64Var(&simFlags.speedup, "speedup", 1, "simulated seconds per real second")
	f.DurationVar(&simFlags.ackLatency, "ack-latency", 0, "delay before acknowledging a command")
	f.Float64Var(&simFlags.dropRate, "drop-rate", 0, "probability of dropping an acknowledgment")
	f.Float64Var(&simFlags.soc, "soc", 30, "initial state of charge in %")
	f.Float64Var(&simFlags.capacity, "capacity", 50, "battery capacity in kWh when the consumer has none configured")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simFlags.dropRate < 0 || simFlags.dropRate > 1 {
		return fmt.Errorf("drop rate must be between 0 and 1")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	boxes, err := wallboxes(cfg)
	if err != nil {
		return err
	}

	var strategy simulator.AckStrategy = simulator.AutoAck{Delay: simFlags.ackLatency}
	if simFlags.dropRate > 0 {
		strategy = simulator.NewRandomAck(simFlags.ackLatency, simFlags.dropRate, time.Now().UnixNano())
	}
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = ""
	sim, err := simulator.New(simulator.Config{
		MQTT:        mqttCfg,
		StatePrefix: cfg.Telemetry.StatePrefix,
		Interval:    simFlags.interval,
		Speedup:     simFlags.speedup,
		Strategy:    strategy,
	}, boxes...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return sim.Run(ctx)
}

func wallboxes(cfg *config.Config) ([]*simulator.Wallbox, error) {
	if len(cfg.Consumers) == 0 {
		return nil, fmt.Errorf("no consumers configured")
	}
	out := make([]*simulator.Wallbox, 0, len(cfg.Consumers))
	for _, c := range cfg.Consumers {
		capacity := c.UsableEnergyKWh
		if capacity <= 0 {
			capacity = simFlags.capacity
		}
		b := &simulator.Battery{CapacityKWh: capacity, SoC: simFlags.soc, MaxSoC: float64(c.MaxSoC)}
		out = append(out, simulator.NewWallbox(c.ID, c.MaxCurrent, c.MaxPhases, b))
	}
	return out, nil
}
