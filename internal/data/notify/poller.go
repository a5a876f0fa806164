package notify

import (
	"sync"
	"time"
)

// Poller emits an AllScopes notice on a fixed interval. It is the fallback
// cadence when no change feed is configured.
type Poller struct {
	ticker *time.Ticker
	events chan Notice
	done   chan struct{}
	once   sync.Once
}

func NewPoller(interval time.Duration) *Poller {
	p := &Poller{
		ticker: time.NewTicker(interval),
		events: make(chan Notice, 1),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Poller) run() {
	for {
		select {
		case <-p.ticker.C:
			// A pending tick already covers every scope.
			select {
			case p.events <- Notice{Scope: AllScopes, Origin: p.Name()}:
			default:
			}
		case <-p.done:
			return
		}
	}
}

func (p *Poller) Name() string { return "poll" }

func (p *Poller) Events() <-chan Notice { return p.events }

func (p *Poller) Close() error {
	p.once.Do(func() {
		p.ticker.Stop()
		close(p.done)
	})
	return nil
}
