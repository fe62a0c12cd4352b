package cmd

import (
	"context"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bindpad/internal/config"
	"github.com/xkilldash9x/bindpad/internal/observability"
	"github.com/xkilldash9x/bindpad/internal/store"
)

func newBindsCmd(provider repositoryProvider) *cobra.Command {
	bindsCmd := &cobra.Command{
		Use:   "binds",
		Short: "Inspect the bind store directly, without a running host",
	}
	bindsCmd.PersistentFlags().String("backend", "", "store backend: file, sqlite or postgres")
	bindsCmd.PersistentFlags().String("store-path", "", "bind file or SQLite database path")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print every stored bind as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return listBinds(ctx, cfg, provider, cmd.OutOrStdout(), observability.GetLogger())
		},
	}
	bindsCmd.AddCommand(listCmd)
	return bindsCmd
}

func listBinds(ctx context.Context, cfg config.Interface, provider repositoryProvider, out io.Writer, logger *zap.Logger) error {
	repo, err := provider.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open bind store: %w", err)
	}
	svc := store.NewService(repo, logger)
	defer svc.Close()

	binds, err := svc.Binds(ctx)
	if err != nil {
		return err
	}
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(binds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode binds: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
