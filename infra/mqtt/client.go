package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/solarcharge/core/command"
	coremon "github.com/kilianp07/solarcharge/core/monitoring"
	"github.com/kilianp07/solarcharge/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string          `json:"broker"`
	ClientID   string          `json:"client_id"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	UseTLS     bool            `json:"use_tls"`
	ClientCert string          `json:"client_cert"`
	ClientKey  string          `json:"client_key"`
	CABundle   string          `json:"ca_bundle"`
	AuthMethod string          `json:"auth_method"`
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	TLSConfig  *tls.Config     `json:"-"`

	// CommandPrefix is the topic root commands are published under as
	// <prefix>/<consumer>/command.
	CommandPrefix string `json:"command_prefix"`
	// AckTopic receives acknowledgments. Empty disables ack tracking.
	AckTopic     string `json:"ack_topic"`
	AckTimeoutMS int    `json:"ack_timeout_ms"`
	MaxRetries   int    `json:"max_retries"`
	BackoffMS    int    `json:"backoff_ms"`
}

// SetDefaults fills unset optional fields.
func (c *Config) SetDefaults() {
	if c.CommandPrefix == "" {
		c.CommandPrefix = "solarcharge"
	}
	if c.AckTimeoutMS <= 0 {
		c.AckTimeoutMS = 5000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.ClientID == "" {
		c.ClientID = "solarcharge-" + uuid.NewString()[:8]
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	if strings.ContainsAny(c.CommandPrefix, "+#") {
		return fmt.Errorf("mqtt command_prefix must not contain wildcards")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Payload is the JSON body of a command message.
type Payload struct {
	CommandID  string         `json:"command_id"`
	ConsumerID string         `json:"consumer_id"`
	Action     command.Action `json:"action"`
	Value      float64        `json:"value,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}

// Ack is the JSON body of an acknowledgment.
type Ack struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Commander implements command.Commander over MQTT.
type Commander struct {
	cli pahoClient
	cfg Config

	mu       sync.Mutex
	ackChans map[string]chan Ack
	logger   logger.Logger
}

var _ command.Commander = (*Commander)(nil)

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewCommander connects to the broker and subscribes to the ack topic.
func NewCommander(cfg Config) (*Commander, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_commander")
	c := &Commander{cfg: cfg, ackChans: make(map[string]chan Ack), logger: log}

	opts.OnConnect = func(cli paho.Client) {
		log.Infof("MQTT connected")
		if cfg.AckTopic == "" {
			return
		}
		if token := cli.Subscribe(cfg.AckTopic, c.qos("ack"), c.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	c.cli = cli
	return c, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (c *Commander) qos(kind string) byte {
	if q, ok := c.cfg.QoS[kind]; ok {
		return q
	}
	return 0
}

func (c *Commander) onAck(_ paho.Client, msg paho.Message) {
	var a Ack
	if err := json.Unmarshal(msg.Payload(), &a); err != nil {
		c.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	c.mu.Lock()
	ch, ok := c.ackChans[a.CommandID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- a:
		c.logger.Debugf("received ack %s", a.CommandID)
	default:
	}
}

func (c *Commander) Start(ctx context.Context, consumerID string) error {
	return c.send(ctx, command.Call{ConsumerID: consumerID, Action: command.ActionStart})
}

func (c *Commander) Stop(ctx context.Context, consumerID string) error {
	return c.send(ctx, command.Call{ConsumerID: consumerID, Action: command.ActionStop})
}

func (c *Commander) SetCurrent(ctx context.Context, consumerID string, amps float64) error {
	return c.send(ctx, command.Call{ConsumerID: consumerID, Action: command.ActionSetCurrent, Value: amps})
}

func (c *Commander) SetPhases(ctx context.Context, consumerID string, phases int) error {
	return c.send(ctx, command.Call{ConsumerID: consumerID, Action: command.ActionSetPhases, Value: float64(phases)})
}

// send publishes the call and waits for its acknowledgment when an ack
// topic is configured.
func (c *Commander) send(ctx context.Context, call command.Call) error {
	cmdID := uuid.NewString()
	payload, err := json.Marshal(Payload{
		CommandID:  cmdID,
		ConsumerID: call.ConsumerID,
		Action:     call.Action,
		Value:      call.Value,
		Timestamp:  time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	var ch chan Ack
	if c.cfg.AckTopic != "" {
		ch = make(chan Ack, 1)
		c.mu.Lock()
		c.ackChans[cmdID] = ch
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			delete(c.ackChans, cmdID)
			c.mu.Unlock()
		}()
	}

	if err := c.publish(ctx, CommandTopic(c.cfg.CommandPrefix, call.ConsumerID), payload); err != nil {
		coremon.CaptureException(err, map[string]string{"consumer_id": call.ConsumerID, "module": "mqtt", "action": string(call.Action)})
		return err
	}
	c.logger.Infof("sent %s %s to %s", call.Action, cmdID, call.ConsumerID)
	if ch == nil {
		return nil
	}

	timer := time.NewTimer(time.Duration(c.cfg.AckTimeoutMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case a := <-ch:
		if a.Status != "" && !strings.EqualFold(a.Status, "ok") {
			return fmt.Errorf("%w: %s %s: %s", command.ErrRejected, call.Action, call.ConsumerID, a.Error)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s %s", command.ErrAckTimeout, call.Action, call.ConsumerID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publish retries failed publishes with exponential backoff. Every attempt
// and every pause is bounded by ctx, which carries the command timeout.
func (c *Commander) publish(ctx context.Context, topic string, payload []byte) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(c.cfg.BackoffMS) * time.Millisecond
	attempt := 0
	op := func() error {
		attempt++
		token := c.cli.Publish(topic, c.qos("command"), false, payload)
		select {
		case <-token.Done():
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		}
		if err := token.Error(); err != nil {
			c.logger.Errorf("publish attempt %d failed: %v", attempt, err)
			return err
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx))
}

// Disconnect gracefully closes the MQTT connection.
func (c *Commander) Disconnect() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}

// CommandTopic returns the topic commands for a consumer are published on.
func CommandTopic(prefix, consumerID string) string {
	return fmt.Sprintf("%s/%s/command", prefix, consumerID)
}
