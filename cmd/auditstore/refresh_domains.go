package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"auditstore/internal/service"
)

var refreshEvery time.Duration

var refreshDomainsCmd = &cobra.Command{
	Use:   "refresh-domains",
	Short: "Download the disposable e-mail domain list into the forbidden domain table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := env.feedSource()
		if err != nil {
			return err
		}
		svc := service.NewDisposableDomainService(src, env.domains, env.logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := svc.UpdateDomainsList(ctx); err != nil {
			return err
		}
		if refreshEvery <= 0 {
			return nil
		}

		ticker := time.NewTicker(refreshEvery)
		defer ticker.Stop()
		env.logger.Info("refreshing periodically", slog.Duration("every", refreshEvery))
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				// a failed run is logged by the service; the next tick retries
				_ = svc.UpdateDomainsList(ctx)
			}
		}
	},
}

func init() {
	refreshDomainsCmd.Flags().DurationVar(&refreshEvery, "every", 0, "keep running and refresh at this interval")
}
