package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/patchwork/delivery"
	"github.com/effective-security/patchwork/heartbeat"
	"github.com/spf13/cobra"
)

func newHeartbeatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Send heartbeats until interrupted, or a single heartbeat with --once",
		Args:  cobra.NoArgs,
		RunE:  runHeartbeat,
	}

	cmd.Flags().StringSlice("tools", nil, "Tool names reported by the server")
	cmd.Flags().Bool("once", false, "Send a single heartbeat and exit")

	return cmd
}

func runHeartbeat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	names, _ := cmd.Flags().GetStringSlice("tools")
	once, _ := cmd.Flags().GetBool("once")

	r := heartbeat.New(heartbeat.FromConfig(cfg, names), nil)

	if once {
		if err := r.SendOnce(cmd.Context()); err != nil {
			if errors.Is(err, delivery.ErrConfigurationMissing) {
				return exitError(exitInvalidInput, "%s", err.Error())
			}
			return exitError(exitNotDelivered, "%s", err.Error())
		}
		fmt.Fprintln(cmd.OutOrStdout(), "heartbeat sent")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.Start(ctx); err != nil {
		return exitError(exitInvalidInput, "%s", err.Error())
	}
	<-ctx.Done()
	r.Stop()
	return nil
}
