package usecase

import "time"

// Option customizes a use case; shared by all constructors in this package.
type Option func(*base)

type base struct {
	now func() time.Time
}

func newBase(opts []Option) base {
	b := base{now: time.Now}
	for _, o := range opts {
		o(&b)
	}
	return b
}

// WithClock replaces time.Now, e.g. with a fake clock in tests.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}
