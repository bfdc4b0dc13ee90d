package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/solarcharge/infra/logger"
	infmqtt "github.com/kilianp07/solarcharge/infra/mqtt"
)

var errPublishTimeout = errors.New("publish timeout")

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type client interface {
	publisher
	IsConnected() bool
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Config describes where the simulator listens and reports.
type Config struct {
	MQTT        infmqtt.Config
	StatePrefix string
	Interval    time.Duration
	// Speedup multiplies simulated time per tick.
	Speedup  float64
	Strategy AckStrategy
}

func (c *Config) setDefaults() {
	c.MQTT.SetDefaults()
	if c.StatePrefix == "" {
		c.StatePrefix = "solarcharge/state"
	}
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.Speedup <= 0 {
		c.Speedup = 1
	}
	if c.Strategy == nil {
		c.Strategy = AutoAck{}
	}
}

// Sim runs a set of wallboxes against an MQTT broker.
type Sim struct {
	cfg   Config
	cli   client
	boxes map[string]*Wallbox
	log   logger.Logger
	now   func() time.Time

	wg sync.WaitGroup
}

// New connects to the broker configured in cfg.MQTT.
func New(cfg Config, boxes ...*Wallbox) (*Sim, error) {
	cfg.setDefaults()
	opts, err := infmqtt.NewClientOptions(cfg.MQTT)
	if err != nil {
		return nil, err
	}
	opts.SetClientID("sim-" + uuid.NewString())
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return newSim(cfg, cli, boxes...), nil
}

func newSim(cfg Config, cli client, boxes ...*Wallbox) *Sim {
	cfg.setDefaults()
	s := &Sim{cfg: cfg, cli: cli, boxes: make(map[string]*Wallbox, len(boxes)), log: logger.New("simulator"), now: time.Now}
	for _, b := range boxes {
		s.boxes[b.ID] = b
	}
	return s
}

// Wallbox returns the simulated wallbox with the given id.
func (s *Sim) Wallbox(id string) (*Wallbox, bool) {
	b, ok := s.boxes[id]
	return b, ok
}

// Run subscribes to the command topics and publishes readings every
// interval until ctx is done.
func (s *Sim) Run(ctx context.Context) error {
	topic := infmqtt.CommandTopic(s.cfg.MQTT.CommandPrefix, "+")
	if token := s.cli.Subscribe(topic, s.cfg.MQTT.QoS["command"], s.onCommand(ctx)); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	s.log.Infof("simulating %d wallboxes on %s", len(s.boxes), topic)
	s.PublishReadings()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			if s.cli.IsConnected() {
				s.cli.Disconnect(250)
			}
			return nil
		case <-ticker.C:
			s.Step(time.Duration(float64(s.cfg.Interval) * s.cfg.Speedup))
			s.PublishReadings()
		}
	}
}

// Step advances every wallbox by dt.
func (s *Sim) Step(dt time.Duration) {
	for _, b := range s.boxes {
		b.Step(dt)
	}
}

// PublishReadings reports the state of every wallbox.
func (s *Sim) PublishReadings() {
	ids := make([]string, 0, len(s.boxes))
	for id := range s.boxes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	at := s.now()
	for _, id := range ids {
		readings, err := s.boxes[id].Readings(at)
		if err != nil {
			s.log.Errorf("%s readings: %v", id, err)
			continue
		}
		topic := strings.TrimSuffix(s.cfg.StatePrefix, "/") + "/" + id
		for _, r := range readings {
			payload, err := json.Marshal(r)
			if err != nil {
				s.log.Errorf("%s: marshal reading: %v", id, err)
				continue
			}
			token := s.cli.Publish(topic, 0, false, payload)
			if !token.WaitTimeout(5 * time.Second) {
				s.log.Warnf("%s: %v", id, errPublishTimeout)
				continue
			}
			if err := token.Error(); err != nil {
				s.log.Errorf("%s: publish reading: %v", id, err)
			}
		}
	}
}

func (s *Sim) onCommand(ctx context.Context) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		var p infmqtt.Payload
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			s.log.Errorf("decode command on %s: %v", msg.Topic(), err)
			return
		}
		if p.ConsumerID == "" {
			p.ConsumerID = consumerFromTopic(msg.Topic())
		}
		ack := s.handle(p)
		if s.cfg.MQTT.AckTopic == "" {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.cfg.Strategy.Ack(ctx, s.cli, s.cfg.MQTT.AckTopic, ack); err != nil && ctx.Err() == nil {
				s.log.Errorf("ack %s: %v", ack.CommandID, err)
			}
		}()
	}
}

func (s *Sim) handle(p infmqtt.Payload) infmqtt.Ack {
	ack := infmqtt.Ack{CommandID: p.CommandID, Status: "ok"}
	b, ok := s.boxes[p.ConsumerID]
	if !ok {
		ack.Status = "error"
		ack.Error = fmt.Sprintf("unknown consumer %s", p.ConsumerID)
		return ack
	}
	if err := b.Apply(p); err != nil {
		ack.Status = "error"
		ack.Error = err.Error()
		return ack
	}
	s.log.Debugf("%s: %s %.1f", p.ConsumerID, p.Action, p.Value)
	return ack
}

// consumerFromTopic extracts <id> from <prefix>/<id>/command.
func consumerFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}
