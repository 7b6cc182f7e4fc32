// Package aggregate folds raw log records into daily, monthly and chart-ready totals.
//
// Every Engine method is pure with respect to its inputs and safe for concurrent use.
// A failure inside a computation never reaches the caller: the method returns the
// zero value for its result and logs a warning.
package aggregate

import (
	"log"
	"time"
)

// DefaultMinutesPerSet is the time credited to one workout set. Workout rows carry no
// measured duration, so training time is estimated from the set count.
const DefaultMinutesPerSet = 3.0

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the logger used for warnings.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLocation sets the time zone whose midnights bound a day.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithMinutesPerSet overrides DefaultMinutesPerSet.
func WithMinutesPerSet(minutes float64) Option {
	return func(e *Engine) {
		if minutes > 0 {
			e.minutesPerSet = minutes
		}
	}
}

// Engine computes aggregates in a fixed time zone.
type Engine struct {
	logger        *log.Logger
	loc           *time.Location
	minutesPerSet float64
}

// New constructs an Engine. Without WithLocation days are bounded in time.Local.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:        log.New(log.Writer(), "[aggregate] ", log.LstdFlags|log.Lshortfile),
		loc:           time.Local,
		minutesPerSet: DefaultMinutesPerSet,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the engine's time zone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// DayWindow returns [local midnight, next local midnight) for the day containing date.
func (e *Engine) DayWindow(date time.Time) (time.Time, time.Time) {
	return dayWindow(date, e.loc)
}

func dayWindow(date time.Time, loc *time.Location) (time.Time, time.Time) {
	local := date.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// guard runs fn and converts a panic into the zero value of T plus a warning.
func guard[T any](e *Engine, operation string, fn func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("%s failed, returning defaults: %v", operation, r)
			recordFailure(operation)
			var zero T
			out = zero
		}
	}()
	return fn()
}
