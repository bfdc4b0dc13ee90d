package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/solarcharge/core/metrics"
	"github.com/kilianp07/solarcharge/infra/logger"
)

// InfluxConfig holds the InfluxDB endpoint settings.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Timeout bounds every HTTP request, 5s when unset.
	Timeout time.Duration `json:"timeout"`
}

// InfluxSink writes control loop events to an InfluxDB instance.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: timeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordDecisions writes one charge_decision point per consumer in a single request.
func (s *InfluxSink) RecordDecisions(evs []coremetrics.DecisionEvent) error {
	if len(evs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(evs))
	for _, e := range evs {
		points = append(points, write.NewPointWithMeasurement("charge_decision").
			AddTag("consumer_id", e.ConsumerID).
			AddTag("tick_id", e.TickID).
			AddTag("mode", e.Mode.String()).
			AddTag("action", string(e.Action)).
			AddTag("suppressed", strconv.FormatBool(e.Suppressed)).
			AddField("current_a", round3(e.CurrentA)).
			AddField("phases", e.Phases).
			AddField("power_w", round3(e.PowerW)).
			AddField("reason", e.Reason).
			SetTime(e.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordBudget writes the tick's power budget and the readings it came from.
func (s *InfluxSink) RecordBudget(ev coremetrics.BudgetEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("power_budget").
		AddTag("tick_id", ev.TickID).
		AddField("budget_w", ev.BudgetW).
		SetTime(ev.Time)
	if ev.GridW != nil {
		p = p.AddField("grid_w", round3(*ev.GridW))
	}
	if ev.InverterW != nil {
		p = p.AddField("inverter_w", round3(*ev.InverterW))
	}
	if ev.BatterySoC != nil {
		p = p.AddField("battery_soc", round3(*ev.BatterySoC))
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCommand writes a command outcome.
func (s *InfluxSink) RecordCommand(ev coremetrics.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("charge_command").
		AddTag("consumer_id", ev.ConsumerID).
		AddTag("tick_id", ev.TickID).
		AddTag("action", string(ev.Action)).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		AddField("errors", ev.Error).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordTick writes a tick summary.
func (s *InfluxSink) RecordTick(ev coremetrics.TickEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("control_tick").
		AddTag("tick_id", ev.TickID).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		AddField("consumers", ev.Consumers).
		AddField("errors", ev.Errors).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
