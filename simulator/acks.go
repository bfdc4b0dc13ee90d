package simulator

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	infmqtt "github.com/kilianp07/solarcharge/infra/mqtt"
)

// AckStrategy decides how a wallbox acknowledges a command.
type AckStrategy interface {
	Ack(ctx context.Context, pub publisher, topic string, a infmqtt.Ack) error
}

// AutoAck acknowledges every command after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
}

func (a AutoAck) Ack(ctx context.Context, pub publisher, topic string, ack infmqtt.Ack) error {
	if !wait(ctx, a.Delay) {
		return ctx.Err()
	}
	return publishAck(pub, topic, ack)
}

// RandomAck drops acknowledgments with probability DropRate and delays the
// others.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAck seeds a RandomAck.
func NewRandomAck(delay time.Duration, dropRate float64, seed int64) *RandomAck {
	return &RandomAck{Delay: delay, DropRate: dropRate, rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomAck) Ack(ctx context.Context, pub publisher, topic string, ack infmqtt.Ack) error {
	if r.drop() {
		return nil
	}
	if !wait(ctx, r.Delay) {
		return ctx.Err()
	}
	return publishAck(pub, topic, ack)
}

func (r *RandomAck) drop() bool {
	if r.DropRate <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return r.rng.Float64() < r.DropRate
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func publishAck(pub publisher, topic string, ack infmqtt.Ack) error {
	payload, err := json.Marshal(ack)
	if err != nil {
		return err
	}
	token := pub.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errPublishTimeout
	}
	return token.Error()
}
