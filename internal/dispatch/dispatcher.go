package dispatch

import (
	"context"
	"time"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/domain"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/logger"
)

// Transport is the injected send operation. The dispatcher treats it as
// opaque; it neither knows nor cares how the message reaches the channel.
type Transport interface {
	SendText(ctx context.Context, instance, address, text string) (*domain.GatewaySendResponse, error)
}

// Recorder persists one durable record per terminal recipient outcome so an
// interrupted run can be resumed without double-sending. Optional.
type Recorder interface {
	RecordOutcome(ctx context.Context, outcome domain.Outcome) error
}

// Observer receives a snapshot after every state transition. Optional,
// read-only.
type Observer func(domain.Snapshot)

// Dispatcher executes a session as a strictly sequential series of sends,
// one in-flight at a time, with a policy-drawn pause before every send but
// the first. Individual send failures are counted and skipped, never fatal;
// cancelling the context stops the loop cleanly with a partial tally.
type Dispatcher struct {
	transport Transport
	composer  *Composer
	delay     Policy
	recorder  Recorder
	observer  Observer
	instance  string
}

func NewDispatcher(transport Transport, composer *Composer, delay Policy, instance string) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		composer:  composer,
		delay:     delay,
		instance:  instance,
	}
}

func (d *Dispatcher) WithRecorder(recorder Recorder) *Dispatcher {
	d.recorder = recorder
	return d
}

func (d *Dispatcher) WithObserver(observer Observer) *Dispatcher {
	d.observer = observer
	return d
}

// Run drains the session. It returns the tally reached when the last
// recipient finished or the context was cancelled. An empty session is a
// no-op: no transport call, zero tally.
func (d *Dispatcher) Run(ctx context.Context, session *Session) domain.Tally {
	recipients := session.Recipients()

	first := true
	for i, recipient := range recipients {
		// Already reached in a previous attempt of this run.
		if session.StatusAt(i) == domain.StatusSent {
			continue
		}

		if !first {
			if !d.pause(ctx, session, d.delay.Next(i)) {
				break
			}
		}
		first = false

		if ctx.Err() != nil {
			break
		}

		session.markSending(i)
		d.notify(session)

		text := d.composer.Compose(i, recipient)

		resp, err := d.transport.SendText(ctx, d.instance, recipient.Address, text)
		attemptedAt := time.Now()

		if err != nil {
			logger.Errorf("Dispatch %s: send to %s failed: %v", session.RunID(), recipient.Address, err)
			session.markError(i)
			d.record(ctx, domain.Outcome{
				RunID:       session.RunID(),
				Position:    i,
				Status:      domain.StatusError,
				ErrorDetail: err.Error(),
				AttemptedAt: attemptedAt,
			})
		} else {
			session.markSent(i)
			d.record(ctx, domain.Outcome{
				RunID:       session.RunID(),
				Position:    i,
				Status:      domain.StatusSent,
				MessageID:   resp.MessageID,
				AttemptedAt: attemptedAt,
			})
		}

		d.notify(session)
	}

	tally := session.Tally()
	remaining := len(recipients) - tally.Sent - tally.Errors

	// A cancel that lands after the last recipient reached a terminal
	// state left nothing undone; that run is completed.
	cancelled := ctx.Err() != nil && remaining > 0
	session.finish(cancelled)
	d.notify(session)

	if cancelled {
		logger.Warnf("Dispatch %s cancelled: %d sent, %d failed, %d not attempted",
			session.RunID(), tally.Sent, tally.Errors, remaining)
	} else {
		logger.Infof("Dispatch %s completed: %d sent, %d failed", session.RunID(), tally.Sent, tally.Errors)
	}

	return tally
}

// pause waits out one inter-send delay in one-second slices so the session
// exposes a live countdown and cancellation takes effect mid-wait. Returns
// false when the context was cancelled.
func (d *Dispatcher) pause(ctx context.Context, session *Session, total time.Duration) bool {
	remaining := total

	for remaining > 0 {
		session.setWaiting(remaining)
		d.notify(session)

		slice := time.Second
		if remaining < slice {
			slice = remaining
		}

		timer := time.NewTimer(slice)
		select {
		case <-ctx.Done():
			timer.Stop()
			session.clearWaiting()
			return false
		case <-timer.C:
		}

		remaining -= slice
	}

	session.clearWaiting()
	return ctx.Err() == nil
}

func (d *Dispatcher) record(ctx context.Context, outcome domain.Outcome) {
	if d.recorder == nil {
		return
	}
	// The outcome must be recorded even when the run context was just
	// cancelled, otherwise a resume would re-send an already-reached
	// recipient.
	if err := d.recorder.RecordOutcome(context.WithoutCancel(ctx), outcome); err != nil {
		logger.Warnf("Dispatch %s: failed to record outcome for position %d: %v",
			outcome.RunID, outcome.Position, err)
	}
}

func (d *Dispatcher) notify(session *Session) {
	if d.observer == nil {
		return
	}
	d.observer(session.Snapshot())
}
