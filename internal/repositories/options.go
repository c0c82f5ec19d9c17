package repositories

import "time"

// Defaults used when no option overrides them.
const (
	DefaultEditWindow  = 15 * time.Minute
	DefaultMaxPinned   = 3
	DefaultPageSize    = 50
	DefaultMaxPageSize = 200
)

type policy struct {
	editWindow  time.Duration
	maxPinned   int
	pageSize    int
	maxPageSize int
	now         func() time.Time
}

func defaultPolicy() policy {
	return policy{
		editWindow:  DefaultEditWindow,
		maxPinned:   DefaultMaxPinned,
		pageSize:    DefaultPageSize,
		maxPageSize: DefaultMaxPageSize,
		now:         time.Now,
	}
}

func (p policy) clock() time.Time {
	return p.now().UTC()
}

// withinWindow reports whether a message created at created may still be edited or deleted for everyone.
func (p policy) withinWindow(created time.Time) bool {
	return p.clock().Sub(created) <= p.editWindow
}

// Option configures a repository.
type Option func(*policy)

// WithEditWindow sets how long after creation a sender may edit or delete for everyone.
func WithEditWindow(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.editWindow = d
		}
	}
}

// WithMaxPinned sets the pin cap per conversation.
func WithMaxPinned(n int) Option {
	return func(p *policy) {
		if n > 0 {
			p.maxPinned = n
		}
	}
}

// WithPageSize sets the default and maximum page sizes for history reads.
func WithPageSize(def, maxSize int) Option {
	return func(p *policy) {
		if def > 0 && maxSize >= def {
			p.pageSize = def
			p.maxPageSize = maxSize
		}
	}
}

func (p policy) limit(n int) int {
	return clampLimit(n, p.pageSize, p.maxPageSize)
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *policy) {
		if now != nil {
			p.now = now
		}
	}
}

func newPolicy(opts []Option) policy {
	p := defaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
