package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/bindpad/api/schemas"
	"github.com/xkilldash9x/bindpad/internal/bus"
	"github.com/xkilldash9x/bindpad/internal/codes"
	"github.com/xkilldash9x/bindpad/internal/config"
	"github.com/xkilldash9x/bindpad/internal/observability"
	"github.com/xkilldash9x/bindpad/internal/shell"
	"github.com/xkilldash9x/bindpad/internal/store"
)

func newServeCmd(provider repositoryProvider) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bind host: store, code capture and the shell endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runServe(ctx, cfg, provider, observability.GetLogger())
		},
	}
	serveCmd.Flags().String("listen", "", "address for the shell endpoint (overrides shell.listen_addr)")
	serveCmd.Flags().String("codes-file", "", "file to follow for captured codes (overrides codes.file)")
	serveCmd.Flags().String("backend", "", "store backend: file, sqlite or postgres")
	serveCmd.Flags().String("store-path", "", "bind file or SQLite database path")
	return serveCmd
}

// runServe runs until ctx is done. Teardown order: stop accepting shells and
// codes, then shut the bus so the forwarding loops drain, then close the store.
func runServe(ctx context.Context, cfg config.Interface, provider repositoryProvider, logger *zap.Logger) error {
	repo, err := provider.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open bind store: %w", err)
	}
	svc := store.NewService(repo, logger)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close bind store", zap.Error(err))
		}
	}()

	eb := bus.New(logger, cfg.Shell().EventBuffer)
	host, err := shell.NewHost(svc, eb, cfg.Shell(), logger)
	if err != nil {
		return err
	}
	triggers, _ := eb.Subscribe(bus.TypeBindTriggered)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return host.Serve(gctx) })
	g.Go(func() error {
		reader, err := codes.NewReader(cfg.Codes(), eb, svc, logger)
		if err != nil {
			return err
		}
		if err := reader.Run(gctx); err != nil {
			if errors.Is(err, codes.ErrNoCaptureFile) {
				logger.Warn("codes.file is not set; no remote codes will be read.")
				return nil
			}
			return err
		}
		return nil
	})

	var loops errgroup.Group
	loops.Go(func() error { host.Run(ctx); return nil })
	loops.Go(func() error { logTriggers(eb, triggers, logger); return nil })

	err = g.Wait()
	eb.Shutdown()
	_ = loops.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// logTriggers reports matched binds. Performing the action is up to the
// desktop side, which listens for the same events through a shell.
func logTriggers(eb *bus.EventBus, triggers <-chan bus.Message, logger *zap.Logger) {
	for msg := range triggers {
		if t, ok := msg.Payload.(schemas.BindTrigger); ok {
			logger.Info("Bind triggered",
				zap.String("bind_id", t.Bind.ID),
				zap.String("code", t.Bind.Code),
				zap.String("action", t.Bind.Action.String()),
				zap.Bool("repeating", t.Repeating),
			)
		}
		eb.Acknowledge(msg)
	}
}
