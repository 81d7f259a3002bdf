// Package debounce schedules delayed calls and collapses bursts of them.
//
// Scheduler is the low-level primitive: Schedule(fn, delay) returns a Handle
// that Cancel accepts. Debouncer builds a trailing debounce on top of it and
// is what the sync engine uses to coalesce persistence writes.
//
// Time comes from a Clock. RealClock wraps package time; FakeClock is
// advanced by hand so tests never sleep.
package debounce
