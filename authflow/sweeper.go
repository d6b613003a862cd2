package authflow

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweepable is any store the background sweeper expires.
type Sweepable interface {
	Name() string
	Sweep(now time.Time) int
}

// Sweeper periodically expires request, flow and code state independent of traffic.
type Sweeper struct {
	interval time.Duration
	stores   []Sweepable
	nowTime  func() time.Time
	onSweep  func(store string, removed int)

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool
}

type SweeperOption func(*Sweeper)

func WithSweepClock(nowTime func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.nowTime = nowTime
	}
}

// WithSweepObserver is called once per store per sweep with the number of removed entries.
func WithSweepObserver(onSweep func(store string, removed int)) SweeperOption {
	return func(s *Sweeper) {
		s.onSweep = onSweep
	}
}

func NewSweeper(interval time.Duration, stores []Sweepable, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		interval: interval,
		stores:   stores,
		nowTime:  time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop. Call Stop to end it.
func (s *Sweeper) Start() {
	s.started = true
	go s.loop()
}

func (s *Sweeper) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.SweepNow()
		case <-s.stop:
			return
		}
	}
}

// SweepNow runs one pass over every store.
func (s *Sweeper) SweepNow() {
	now := s.nowTime()
	for _, store := range s.stores {
		removed := store.Sweep(now)
		if removed > 0 {
			log.Debug().Str("store", store.Name()).Int("removed", removed).Msg("swept expired entries")
		}
		if s.onSweep != nil {
			s.onSweep(store.Name(), removed)
		}
	}
}

// Stop ends the loop and waits for it to exit. Safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.started {
			<-s.done
		}
	})
}
