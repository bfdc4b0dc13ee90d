package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"testing"
	"time"

	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/solarcharge/core/command"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.WriteFile(caFile, certPEM, 0644); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
}

func withMockClient(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

func TestQoSSettings(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", AckTopic: "a", QoS: map[string]byte{"command": 2, "ack": 1}}
	cli, err := NewCommander(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if len(mc.subscribed) == 0 || mc.subscribed[0].qos != 1 {
		t.Fatalf("subscribe qos not applied")
	}
	mc.onPublish = func(p Payload) {
		cli.onAck(nil, mockMessage{[]byte(fmt.Sprintf(`{"command_id":"%s","status":"ok"}`, p.CommandID))})
	}
	if err := cli.SetCurrent(context.Background(), "car1", 10); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(mc.published) != 1 || mc.published[0].qos != 2 {
		t.Fatalf("publish qos not applied")
	}
	if mc.published[0].topic != "solarcharge/car1/command" {
		t.Fatalf("unexpected topic %s", mc.published[0].topic)
	}
	p := mc.published[0].payload
	if p.Action != command.ActionSetCurrent || p.Value != 10 || p.ConsumerID != "car1" || p.CommandID == "" {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1}
	cli, err := NewCommander(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !mc.opts.WillEnabled {
		t.Fatalf("will not enabled")
	}
	if mc.opts.WillTopic != "lwt" || string(mc.opts.WillPayload) != "bye" {
		t.Fatalf("will options incorrect")
	}
	cli.Disconnect()
	if len(mc.published) != 0 {
		t.Fatalf("unexpected publish on disconnect")
	}
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	withMockClient(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1}
	cli, err := NewCommander(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := cli.Start(context.Background(), "car1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected retries, got %d publishes", len(mc.published))
	}
}

func TestAckTimeout(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", AckTopic: "a", AckTimeoutMS: 1}
	cli, err := NewCommander(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	err = cli.Stop(context.Background(), "car1")
	if !errors.Is(err, command.ErrAckTimeout) {
		t.Fatalf("expected ack timeout, got %v", err)
	}
}

func TestAckRejected(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	cli, err := NewCommander(Config{Broker: "tcp://localhost:1883", ClientID: "id", AckTopic: "a"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	mc.onPublish = func(p Payload) {
		cli.onAck(nil, mockMessage{[]byte(fmt.Sprintf(`{"command_id":"%s","status":"error","error":"busy"}`, p.CommandID))})
	}
	err = cli.SetPhases(context.Background(), "car1", 1)
	if !errors.Is(err, command.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestAckWaitHonoursContext(t *testing.T) {
	mc := &mockClient{}
	withMockClient(t, mc)
	cli, err := NewCommander(Config{Broker: "tcp://localhost:1883", ClientID: "id", AckTopic: "a", AckTimeoutMS: 60000})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := cli.Start(ctx, "car1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(cli.ackChans) != 0 {
		t.Fatalf("ack channel not released")
	}
}

func TestPublishWaitHonoursContext(t *testing.T) {
	mc := &mockClient{stalled: true}
	withMockClient(t, mc)
	cli, err := NewCommander(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 5, BackoffMS: 1})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = cli.SetCurrent(ctx, "car1", 10)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("publish outlived its context")
	}
	if len(mc.published) != 1 {
		t.Fatalf("expected no retry after the deadline, got %d publishes", len(mc.published))
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected missing broker error")
	}
	if err := (Config{Broker: "tcp://b:1883", CommandPrefix: "a/#"}).Validate(); err == nil {
		t.Fatalf("expected wildcard error")
	}
	cfg := Config{Broker: "tcp://b:1883"}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.CommandPrefix != "solarcharge" || cfg.ClientID == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

// mockClient implements pahoClient for tests
type mockClient struct {
	opts       *paho.ClientOptions
	subscribed []struct {
		topic string
		qos   byte
	}
	published   []published
	publishErrs []error
	onPublish   func(Payload)
	stalled     bool
}

type published struct {
	topic   string
	qos     byte
	payload Payload
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	var p Payload
	if b, ok := payload.([]byte); ok {
		_ = json.Unmarshal(b, &p)
	}
	m.published = append(m.published, published{topic, qos, p})
	if m.stalled {
		return pendingToken{}
	}
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		if err != nil {
			return &dummyToken{err: err}
		}
	}
	if m.onPublish != nil {
		m.onPublish(p)
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, _ paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

// pendingToken never completes, like a publish to an unresponsive broker.
type pendingToken struct{}

func (pendingToken) Wait() bool                     { select {} }
func (pendingToken) WaitTimeout(time.Duration) bool { return false }
func (pendingToken) Done() <-chan struct{}          { return make(chan struct{}) }
func (pendingToken) Error() error                   { return nil }

type mockMessage struct{ p []byte }

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return "" }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
