package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Strob0t/taskcrew/internal/service"
)

func newProcessQueueCmd() *cobra.Command {
	var businessID string
	cmd := &cobra.Command{
		Use:   "process-queue",
		Short: "Run one dispatch cycle for a business and print the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if businessID == "" {
				return errors.New("--business is required")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, closer := setupLogger(cfg)
			defer closer.Close()

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer store.close()

			invoker, err := newInvoker(cfg)
			if err != nil {
				return err
			}

			// A running server picks the changes up through its NATS relay,
			// which streams them and evicts its queue-status cache.
			q := connectQueue(ctx, cfg, log)
			if q != nil {
				defer func() { _ = q.Close() }()
			}
			changes := service.NewNotifiers(log, outboundSinks(cfg, q)...)
			if changes.Count() == 0 {
				log.Warn("no change sinks configured; dashboards will not see this cycle")
			}

			d := service.NewDispatcher(service.DispatcherDeps{
				Store:   store,
				Invoker: invoker,
				Changes: changes,
				Log:     log,
				Config:  cfg.Orchestrator,
			})
			sum, err := d.ProcessQueue(ctx, businessID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&businessID, "business", "", "business id")
	return cmd
}
