package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/port-labs/ocean-core/internal/catalog"
	"github.com/port-labs/ocean-core/internal/config"
	ocerrors "github.com/port-labs/ocean-core/internal/errors"
	"github.com/port-labs/ocean-core/internal/obs"
	"github.com/port-labs/ocean-core/internal/webhook"
)

// shutdownGrace bounds how long Run waits for the HTTP server and the
// active resync to tear down once a shutdown signal arrives.
const shutdownGrace = 15 * time.Second

func integrationSpec(cfg *config.Config) catalog.IntegrationSpec {
	return catalog.IntegrationSpec{
		Identifier: cfg.Integration.Identifier,
		Type:       cfg.Integration.Type,
		Version:    integrationVersion,
	}
}

// Run executes the startup sequence of §4.6: onStart hooks, then
// registerIntegration, then the webhook HTTP server, then (unless the
// listener mode is WEBHOOKS_ONLY) an initial resync, then the listener-mode
// loop selected by Config.EventListenerType. It blocks until ctx is
// cancelled or a SIGINT/SIGTERM arrives (in ONCE mode, until the single
// resync finishes), then drains in-flight work for at most shutdownGrace
// before returning.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := obs.FromContext(ctx)

	for _, hook := range rt.onStart {
		if err := hook(ctx); err != nil {
			return err
		}
	}

	if err := rt.Catalog.RegisterIntegration(ctx, integrationSpec(rt.Config)); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", rt.Config.WebhookPort),
		Handler: webhook.NewServer(rt.dispatcher),
	}
	serveErrs := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrs <- err
			return
		}
		serveErrs <- nil
	}()
	log.Info("webhook server listening", "port", rt.Config.WebhookPort)

	if rt.Config.EventListenerType != config.EventListenerWebhooksOnly {
		rt.TriggerResync(ctx)
	}

	loopErr := rt.runListenerLoop(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "webhook server shutdown")
	}
	resyncDone := make(chan struct{})
	go func() {
		rt.waitActiveResync()
		close(resyncDone)
	}()
	select {
	case <-resyncDone:
	case <-shutdownCtx.Done():
		log.Info("active resync did not tear down within the shutdown grace period")
	}

	if err := <-serveErrs; err != nil {
		return err
	}
	return loopErr
}

// runListenerLoop dispatches to the listener-mode-specific loop and blocks
// until ctx is done (or, for ONCE mode, until the single resync finishes).
func (rt *Runtime) runListenerLoop(ctx context.Context) error {
	switch rt.Config.EventListenerType {
	case config.EventListenerOnce:
		rt.waitActiveResync()
		return nil
	case config.EventListenerWebhooksOnly:
		<-ctx.Done()
		return nil
	case config.EventListenerKafka:
		if rt.kafka == nil {
			return ocerrors.NewConfigError(fmt.Errorf("eventListenerType is KAFKA but no KafkaSubscriber was registered via WithKafkaSubscriber"))
		}
		return rt.kafkaLoop(ctx)
	default:
		rt.pollLoop(ctx)
		return nil
	}
}
