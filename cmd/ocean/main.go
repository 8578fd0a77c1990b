// Command ocean is the minimal entrypoint wiring configuration, the
// catalog HTTP client, and internal/runtime together (§4.6/§9). It
// registers no kinds or webhook processors of its own: a real integration
// imports internal/runtime directly and calls RegisterResync/
// RegisterWebhookProcessor before Run. This binary proves the wiring
// compiles end to end; run as is, it loads and validates the config,
// registers the integration, serves the webhook endpoint, and runs
// resyncs that find no registered kinds and write no entities.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/port-labs/ocean-core/internal/catalog"
	"github.com/port-labs/ocean-core/internal/config"
	"github.com/port-labs/ocean-core/internal/obs"
	"github.com/port-labs/ocean-core/internal/runtime"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ocean",
		Short: "Runs the Ocean integration core against a configured event listener mode",
		RunE:  run,
	}
	flags := cmd.Flags()
	flags.String("config", config.DefaultConfigPath, "path to the local ocean-config.yml")
	flags.String("port-base-url", "", "Port API base URL")
	flags.String("integration-identifier", "", "integration instance identifier")
	flags.String("integration-type", "", "integration type")
	flags.String("event-listener-type", "", "POLLING, KAFKA, WEBHOOKS_ONLY, or ONCE")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	zapLog, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = zapLog.Sync() }()
	log := zapr.NewLogger(zapLog).WithValues("integration", cfg.Integration.Identifier)

	ctx := obs.NewContext(cmd.Context(), log)
	metrics := obs.NewMetrics(prometheus.DefaultRegisterer)

	token := catalog.NewOAuthTokenSource(cfg.Port.ClientID, cfg.Port.ClientSecret, cfg.Port.BaseURL+"/v1/auth/access_token")
	httpClient := catalog.NewHTTPTransport(time.Duration(cfg.HTTPTimeoutSeconds)*time.Second, cfg.VerifySSL)
	client := catalog.NewHTTPClient(cfg.Port.BaseURL, httpClient, token, metrics)

	rt := runtime.New(cfg, client, metrics)

	watcher, err := config.NewWatcher(cfg, log, func(updated *config.Config) {
		log.Info("config file changed; the running process keeps the configuration it started with", "path", updated.ConfigPath)
	})
	if err != nil {
		log.Error(err, "starting config file watcher, continuing without watching the config file")
	} else {
		defer func() { _ = watcher.Close() }()
	}

	return rt.Run(ctx)
}
