package cache

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Amund211/warmstart/internal/domain"
)

type options struct {
	name       string
	expiration time.Duration
	capacity   uint64
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*options) error

// Override the expiration duration used by NewAbsoluteCache and NewSlidingCache
func WithExpiration(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("%w: expiration must be greater than 0, got %s", domain.ErrInvalidConfiguration, d)
		}
		o.expiration = d
		return nil
	}
}

func WithName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return fmt.Errorf("%w: cache name must not be empty", domain.ErrInvalidConfiguration)
		}
		o.name = name
		return nil
	}
}

// Bound the number of entries. The least recently used entry is dropped when full.
func WithCapacity(capacity uint64) Option {
	return func(o *options) error {
		o.capacity = capacity
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return fmt.Errorf("%w: clock must not be nil", domain.ErrInvalidConfiguration)
		}
		o.now = now
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

func buildOptions(opts []Option) (*options, error) {
	o := &options{
		expiration: DefaultExpiration,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
