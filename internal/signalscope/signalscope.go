// Package signalscope provides a scoped helper that temporarily restores
// the platform-default disposition for a set of signals across a critical
// section, then re-subscribes them on exit.
//
// Go offers no portable way to query or install a raw POSIX disposition the
// way sigaction(2) does; the closest correct idiom is to stop delivering a
// signal to any channel (os/signal.Reset, which puts it back to the OS
// default action) and, on the way out, re-subscribe whatever channel this
// process had previously registered for it via os/signal.Notify.
package signalscope

import (
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
)

// Subscription describes a signal this process had previously routed to a
// channel. WithDefault needs it to know what to restore.
type Subscription struct {
	Signal os.Signal
	Chan   chan<- os.Signal
}

// WithDefault sets each listed subscription's signal to the platform
// default disposition for the duration of body, then restores the
// subscription. Restoration happens exactly once, via defer, even if body
// panics; the panic is re-raised unchanged after cleanup runs.
//
// Subscriptions whose Chan is nil are reset to default and, since nothing
// was listening anyway, simply left unsubscribed afterward - there is
// nothing to restore.
func WithDefault(subs []Subscription, body func()) {
	swapped := make([]Subscription, 0, len(subs))
	for _, sub := range subs {
		if !resetSignal(sub.Signal) {
			continue
		}
		swapped = append(swapped, sub)
	}

	defer func() {
		for _, sub := range swapped {
			if sub.Chan != nil {
				signal.Notify(sub.Chan, sub.Signal)
			}
		}
	}()

	body()
}

// resetSignal installs the default disposition for sig. It never returns an
// error - os/signal.Reset has no failure mode on the platforms this repo
// targets - but panics originating from a misbehaving signal subsystem are
// recovered and logged at trace level so one bad signal never prevents the
// others from being swapped, matching the "record a trace-level event and
// skip that signal" policy for SignalRegisterFailed.
func resetSignal(sig os.Signal) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("signal", sig).Tracef("signalscope: failed to reset disposition: %v", r)
			ok = false
		}
	}()
	signal.Reset(sig)
	return true
}
