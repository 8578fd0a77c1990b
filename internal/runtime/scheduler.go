package runtime

import (
	"context"
	"time"

	"github.com/port-labs/ocean-core/internal/obs"
)

// TriggerResync cancels the currently active resync (if any) and waits for
// it to fully tear down before starting the next one, enforcing the
// at-most-one-resync-active invariant of §4.4/§5 ("the active run is
// cancelled; the new run starts only after the previous one has fully torn
// down"). ctx bounds the lifetime of the new run, not the wait for the old
// one to finish.
func (rt *Runtime) TriggerResync(ctx context.Context) {
	rt.runMu.Lock()
	if rt.cancelActive != nil {
		rt.cancelActive()
		done := rt.activeDone
		rt.runMu.Unlock()
		<-done
		rt.runMu.Lock()
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	rt.cancelActive = cancel
	rt.activeDone = done
	rt.runMu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		rt.runResyncOnce(runCtx)

		rt.runMu.Lock()
		if rt.activeDone == done {
			rt.cancelActive = nil
			rt.activeDone = nil
		}
		rt.runMu.Unlock()
	}()
}

// waitActiveResync blocks until the currently active resync (if any) has
// torn down. Used by shutdown to avoid leaving a resync mid-flight when the
// process exits.
func (rt *Runtime) waitActiveResync() {
	rt.runMu.Lock()
	done := rt.activeDone
	rt.runMu.Unlock()
	if done != nil {
		<-done
	}
}

// pollLoop drives EventListenerPolling mode: Run has already triggered the
// first resync, so this triggers another every ScheduledResyncInterval
// until ctx is cancelled (§4.6).
func (rt *Runtime) pollLoop(ctx context.Context) {
	if rt.Config.ScheduledResyncInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(rt.Config.ScheduledResyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.TriggerResync(ctx)
		}
	}
}

// kafkaLoop drives EventListenerKafka mode: every message on the
// subscription triggers one resync (§4.6). Requires WithKafkaSubscriber to
// have been called; otherwise Run returns a ConfigError before reaching
// here.
func (rt *Runtime) kafkaLoop(ctx context.Context) error {
	messages, err := rt.kafka.Subscribe(ctx, rt.Config.Integration.Identifier)
	if err != nil {
		return err
	}
	log := obs.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-messages:
			if !ok {
				return nil
			}
			log.Info("kafka trigger received, starting resync")
			rt.TriggerResync(ctx)
		}
	}
}
