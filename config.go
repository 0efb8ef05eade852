package pool

import (
	"context"
	"time"
)

// Validator is a sealed sum type over the two validation modes a factory
// may provide: synchronous or asynchronous, never both.
type Validator[T any] interface {
	validator()
}

// SyncValidator checks a handle synchronously before it is dispensed to a
// waiter. It must never mutate the handle observably.
type SyncValidator[T any] func(handle T) bool

func (SyncValidator[T]) validator() {}

// AsyncValidator checks a handle asynchronously, reporting the outcome via
// done exactly once. done may be called from any goroutine, synchronously
// or not.
type AsyncValidator[T any] func(handle T, done func(valid bool))

func (AsyncValidator[T]) validator() {}

// Factory is the pool's external collaborator for producing, destroying,
// and validating handles.
type Factory[T any] struct {
	// Create produces a new handle. May fail; failures are delivered to
	// at most one waiter and never leak the pool's internal count.
	Create func(ctx context.Context) (T, error)

	// Destroy tears a handle down. Best-effort: it cannot fail, and any
	// panic or error it raises internally is the caller's concern, not
	// the pool's.
	Destroy func(handle T)

	// Check is either a SyncValidator or an AsyncValidator. Required.
	Check Validator[T]
}

// Config configures a Pool. Field names and defaults mirror the option
// table a generic resource pool needs: a floor and ceiling on resource
// count, idle reaping, and an optional acquire deadline.
type Config[T any] struct {
	// Name is a diagnostic label only.
	Name string

	Factory Factory[T]

	// Min is the floor the pool eagerly maintains once warmed.
	Min int
	// Max is the hard cap on total resources alive or being born.
	Max int

	// IdleTimeout is how long an available resource may sit before being
	// reaped. Defaults to 30s.
	IdleTimeout time.Duration
	// ReapInterval is the period between reaper sweeps while armed.
	// Defaults to 1s.
	ReapInterval time.Duration
	// AcquireTimeout bounds how long a waiter may remain enqueued. Zero
	// means no pool-imposed deadline beyond whatever the caller's
	// context.Context already carries.
	AcquireTimeout time.Duration

	// RefreshIdle, when nil or true, allows the reaper to destroy idle
	// resources, never taking the count below Min. Set to a false pointer
	// to turn reaping off entirely (the zero value of *bool can't
	// distinguish "unset" from "false", hence the pointer).
	RefreshIdle *bool
	// ReturnToHead inserts released resources at the head of the
	// available list (LIFO reuse) rather than the tail (FIFO reuse).
	ReturnToHead bool

	// Log enables the default zap-backed logger when true. Set LogFunc
	// instead to supply a custom sink — LogFunc takes precedence if both
	// are set.
	Log     bool
	LogFunc func(msg string, level Level)
}

const (
	defaultIdleTimeout  = 30 * time.Second
	defaultReapInterval = 1 * time.Second
)

func (c *Config[T]) refreshIdle() bool {
	if c.RefreshIdle == nil {
		return true
	}
	return *c.RefreshIdle
}

func (c *Config[T]) validate() error {
	if c.Factory.Create == nil {
		return &ConfigError{Field: "Factory.Create", Reason: "required"}
	}
	if c.Factory.Destroy == nil {
		return &ConfigError{Field: "Factory.Destroy", Reason: "required"}
	}
	switch c.Factory.Check.(type) {
	case SyncValidator[T], AsyncValidator[T]:
	default:
		return &ConfigError{Field: "Factory.Check", Reason: "exactly one of SyncValidator or AsyncValidator is required"}
	}
	if c.Min < 0 {
		return &ConfigError{Field: "Min", Reason: "must be >= 0"}
	}
	if c.Max <= 0 {
		return &ConfigError{Field: "Max", Reason: "must be > 0"}
	}
	if c.Min > c.Max {
		return &ConfigError{Field: "Min", Reason: "must be <= Max"}
	}
	if c.IdleTimeout < 0 {
		return &ConfigError{Field: "IdleTimeout", Reason: "must be >= 0"}
	}
	if c.ReapInterval < 0 {
		return &ConfigError{Field: "ReapInterval", Reason: "must be >= 0"}
	}
	if c.AcquireTimeout < 0 {
		return &ConfigError{Field: "AcquireTimeout", Reason: "must be >= 0"}
	}
	return nil
}

func (c *Config[T]) applyDefaults() {
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.ReapInterval == 0 {
		c.ReapInterval = defaultReapInterval
	}
}
