package simulator

import (
	"math"
	"sync"
	"time"
)

// Battery models a vehicle battery that only charges.
type Battery struct {
	CapacityKWh float64
	SoC         float64 // %
	MaxSoC      float64 // %, 0 means 100

	mu sync.Mutex
}

// Charge adds powerW over dt and returns the power actually absorbed after
// the SoC ceiling is enforced.
func (b *Battery) Charge(powerW float64, dt time.Duration) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	hours := dt.Hours()
	if hours <= 0 || powerW <= 0 || b.CapacityKWh <= 0 {
		return 0
	}
	ceiling := b.MaxSoC
	if ceiling <= 0 || ceiling > 100 {
		ceiling = 100
	}
	room := math.Max(ceiling-b.SoC, 0) / 100 * b.CapacityKWh * 1000
	energy := math.Min(powerW*hours, room)
	b.SoC += energy / (b.CapacityKWh * 1000) * 100
	if b.SoC > ceiling || ceiling-b.SoC < 1e-9 {
		b.SoC = ceiling
	}
	return energy / hours
}

// Level returns the current SoC in percent.
func (b *Battery) Level() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.SoC
}

// Full reports whether the SoC ceiling is reached.
func (b *Battery) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ceiling := b.MaxSoC
	if ceiling <= 0 || ceiling > 100 {
		ceiling = 100
	}
	return b.SoC >= ceiling
}
