package prices

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kilianp07/solarcharge/config"
	"github.com/kilianp07/solarcharge/core/forecast"
	coremon "github.com/kilianp07/solarcharge/core/monitoring"
	"github.com/kilianp07/solarcharge/infra/logger"
)

// Fetcher returns the wholesale prices for a window.
type Fetcher interface {
	Fetch(ctx context.Context, from, to time.Time) (*Response, error)
}

// Poller periodically refreshes the price forecast.
type Poller struct {
	cfg   config.PricesConfig
	src   Fetcher
	store forecast.Store
	log   logger.Logger
	now   func() time.Time
}

func NewPoller(cfg config.PricesConfig, src Fetcher, store forecast.Store) *Poller {
	cfg.SetDefaults()
	return &Poller{cfg: cfg, src: src, store: store, log: logger.New("prices"), now: time.Now}
}

// Run refreshes immediately and then every PollInterval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.cfg.PollInterval)
	defer t.Stop()
	for {
		if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			p.log.Errorf("price refresh failed: %v", err)
			coremon.CaptureException(err, map[string]string{"module": "prices"})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Refresh fetches prices from the current hour over the look-ahead window
// and writes them to the store.
func (p *Poller) Refresh(ctx context.Context) error {
	from := p.now().UTC().Truncate(time.Hour)
	to := from.Add(p.cfg.LookAhead)

	var resp *Response
	op := func() error {
		var err error
		resp, err = p.src.Fetch(ctx, from, to)
		var se *StatusError
		if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.RetryDelay), p.cfg.MaxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return err
	}

	intervals, err := resp.Intervals(p.cfg.SolarPrice)
	if err != nil {
		return err
	}
	for i := range intervals {
		intervals[i].GridPrice += p.cfg.GridFee
	}
	p.store.SetPrices(intervals)
	p.log.Infof("stored %d price intervals from %s", len(intervals), from.Format(time.RFC3339))
	return nil
}
