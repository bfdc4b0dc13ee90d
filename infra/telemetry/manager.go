// Package telemetry ingests consumer, site and forecast readings from MQTT
// into the state and forecast stores. Handlers only write to the stores, so
// a slow control tick never delays ingestion.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/solarcharge/config"
	"github.com/kilianp07/solarcharge/core/events"
	"github.com/kilianp07/solarcharge/core/forecast"
	"github.com/kilianp07/solarcharge/core/model"
	"github.com/kilianp07/solarcharge/core/state"
	"github.com/kilianp07/solarcharge/infra/logger"
	infmqtt "github.com/kilianp07/solarcharge/infra/mqtt"
	"github.com/kilianp07/solarcharge/internal/eventbus"
)

const (
	kindConsumer = "consumer"
	kindSite     = "site"
	kindPrices   = "prices"
	kindSolar    = "solar"
)

// Consumer fields accepted on the state topics.
const (
	FieldSoC       = "soc"
	FieldPluggedIn = "plugged_in"
	FieldPhases    = "phases"
	FieldAtHome    = "at_home"
	FieldCurrent   = "current"
	FieldPower     = "power"
	FieldCharging  = "charging"
)

var errUnknownField = errors.New("unknown telemetry field")

type subscriber interface {
	IsConnected() bool
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Manager subscribes to telemetry topics and writes readings to the stores.
type Manager struct {
	cfg      config.TelemetryConfig
	cli      subscriber
	state    *state.Store
	forecast forecast.Store
	bus      eventbus.EventBus
	log      logger.Logger
	now      func() time.Time
}

// ConsumerReading is one consumer field update.
type ConsumerReading struct {
	ConsumerID string          `json:"consumer_id"`
	Field      string          `json:"field"`
	Value      json.RawMessage `json:"value"`
	TS         *int64          `json:"ts"`
}

// SiteReading carries any subset of the site values.
type SiteReading struct {
	GridPower     *float64 `json:"grid_power"`
	InverterPower *float64 `json:"inverter_power"`
	BatterySoC    *float64 `json:"battery_soc"`
	BatteryPower  *float64 `json:"battery_power"`
	TS            *int64   `json:"ts"`
}

// NewManager connects a dedicated MQTT client for telemetry.
func NewManager(mqttCfg infmqtt.Config, cfg config.TelemetryConfig, st *state.Store, fc forecast.Store, bus eventbus.EventBus) (*Manager, error) {
	if st == nil || fc == nil {
		return nil, fmt.Errorf("telemetry: state and forecast stores are required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := infmqtt.NewClientOptions(mqttCfg)
	if err != nil {
		return nil, err
	}
	id := mqttCfg.ClientID
	if id != "" {
		id += "-telemetry"
	} else {
		id = "telemetry-" + uuid.NewString()
	}
	opts.SetClientID(id)
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return newManager(cfg, cli, st, fc, bus), nil
}

func newManager(cfg config.TelemetryConfig, cli subscriber, st *state.Store, fc forecast.Store, bus eventbus.EventBus) *Manager {
	cfg.SetDefaults()
	return &Manager{cfg: cfg, cli: cli, state: st, forecast: fc, bus: bus, log: logger.New("telemetry"), now: time.Now}
}

// Start subscribes to all topics and blocks until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	subs := map[string]paho.MessageHandler{
		m.cfg.StateTopic():  m.onConsumer,
		m.cfg.SiteTopic:     m.onSite,
		m.cfg.PricesTopic(): m.onPrices,
		m.cfg.SolarTopic():  m.onSolar,
	}
	for topic, h := range subs {
		if token := m.cli.Subscribe(topic, m.cfg.QoS, h); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		m.log.Infof("subscribed to %s", topic)
	}
	<-ctx.Done()
	if m.cli.IsConnected() {
		m.cli.Disconnect(250)
	}
	return nil
}

func (m *Manager) onConsumer(_ paho.Client, msg paho.Message) {
	m.handle(kindConsumer, func() error { return m.ProcessConsumer(msg.Payload(), msg.Topic()) })
}

func (m *Manager) onSite(_ paho.Client, msg paho.Message) {
	m.handle(kindSite, func() error { return m.ProcessSite(msg.Payload()) })
}

func (m *Manager) onPrices(_ paho.Client, msg paho.Message) {
	m.handle(kindPrices, func() error { return m.ProcessPrices(msg.Payload()) })
}

func (m *Manager) onSolar(_ paho.Client, msg paho.Message) {
	m.handle(kindSolar, func() error { return m.ProcessSolar(msg.Payload()) })
}

func (m *Manager) handle(kind string, fn func() error) {
	if err := fn(); err != nil {
		decodeErrors.WithLabelValues(kind).Inc()
		m.log.Errorf("%s telemetry: %v", kind, err)
		return
	}
	messagesTotal.WithLabelValues(kind).Inc()
	lastMessage.WithLabelValues(kind).SetToCurrentTime()
}

func extractID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return ""
}

func (m *Manager) at(ts *int64) time.Time {
	if ts != nil {
		return time.Unix(*ts, 0)
	}
	return m.now()
}

// ProcessConsumer applies one consumer reading. The consumer id falls back
// to the last topic segment.
func (m *Manager) ProcessConsumer(payload []byte, topic string) error {
	var r ConsumerReading
	if err := json.Unmarshal(payload, &r); err != nil {
		return err
	}
	if r.ConsumerID == "" {
		r.ConsumerID = extractID(topic)
	}
	if r.ConsumerID == "" {
		return fmt.Errorf("reading without consumer id")
	}
	at := m.at(r.TS)
	if err := m.apply(r, at); err != nil {
		return fmt.Errorf("consumer %s field %s: %w", r.ConsumerID, r.Field, err)
	}
	m.publish(events.TelemetryEvent{ConsumerID: r.ConsumerID, Field: r.Field, Time: at})
	return nil
}

func (m *Manager) apply(r ConsumerReading, at time.Time) error {
	id := r.ConsumerID
	switch r.Field {
	case FieldSoC:
		v, err := decodeFloat(r.Value)
		if err != nil {
			return err
		}
		return m.state.UpdateSoC(id, math.Min(math.Max(v, 0), 100), at)
	case FieldCurrent:
		v, err := decodeFloat(r.Value)
		if err != nil {
			return err
		}
		return m.state.UpdateChargingCurrent(id, v, at)
	case FieldPower:
		v, err := decodeFloat(r.Value)
		if err != nil {
			return err
		}
		return m.state.UpdateChargingPower(id, int(math.Round(v)), at)
	case FieldPhases:
		v, err := decodeFloat(r.Value)
		if err != nil {
			return err
		}
		if v < 1 || v > 3 {
			return fmt.Errorf("phases %v out of range", v)
		}
		return m.state.UpdatePhases(id, int(v), at)
	case FieldPluggedIn, FieldAtHome, FieldCharging:
		var b bool
		if err := json.Unmarshal(r.Value, &b); err != nil {
			return err
		}
		switch r.Field {
		case FieldPluggedIn:
			return m.state.UpdatePluggedIn(id, b, at)
		case FieldAtHome:
			return m.state.UpdateAtHome(id, b, at)
		default:
			return m.state.UpdateCharging(id, b, at)
		}
	default:
		return errUnknownField
	}
}

func decodeFloat(raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value not finite")
	}
	return v, nil
}

// ProcessSite applies the site values present in the payload.
func (m *Manager) ProcessSite(payload []byte) error {
	var r SiteReading
	if err := json.Unmarshal(payload, &r); err != nil {
		return err
	}
	at := m.at(r.TS)
	fields := []struct {
		field state.SiteField
		v     *float64
	}{
		{state.SiteGridPower, r.GridPower},
		{state.SiteInverterPower, r.InverterPower},
		{state.SiteBatterySoC, r.BatterySoC},
		{state.SiteBatteryPower, r.BatteryPower},
	}
	n := 0
	for _, f := range fields {
		if f.v == nil {
			continue
		}
		if err := m.state.UpdateSite(f.field, *f.v, at); err != nil {
			return err
		}
		m.publish(events.TelemetryEvent{Field: string(f.field), Time: at})
		n++
	}
	if n == 0 {
		return fmt.Errorf("site payload without values")
	}
	return nil
}

// ProcessPrices replaces the covered price forecast.
func (m *Manager) ProcessPrices(payload []byte) error {
	var ps []model.PriceInterval
	if err := json.Unmarshal(payload, &ps); err != nil {
		return err
	}
	for _, p := range ps {
		if !p.ValidTo.After(p.ValidFrom) {
			return fmt.Errorf("price interval %s has no length", p.ValidFrom.Format(time.RFC3339))
		}
	}
	m.forecast.SetPrices(ps)
	m.publish(events.TelemetryEvent{Field: kindPrices, Time: m.now()})
	return nil
}

// ProcessSolar replaces the covered solar surplus forecast.
func (m *Manager) ProcessSolar(payload []byte) error {
	var ss []model.SolarSlice
	if err := json.Unmarshal(payload, &ss); err != nil {
		return err
	}
	for _, s := range ss {
		if !s.ValidTo.After(s.ValidFrom) {
			return fmt.Errorf("solar slice %s has no length", s.ValidFrom.Format(time.RFC3339))
		}
	}
	m.forecast.SetSolar(ss)
	m.publish(events.TelemetryEvent{Field: kindSolar, Time: m.now()})
	return nil
}

func (m *Manager) publish(ev events.TelemetryEvent) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}
