package cli

import (
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/patchwork/callbacks"
	"github.com/effective-security/patchwork/client"
	"github.com/effective-security/patchwork/middleware"
	"github.com/effective-security/patchwork/tools/feedbacktool"
	"github.com/effective-security/xlog"
	mcp "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run an MCP server on stdio exposing the feedback tool",
		Long: "Run an MCP server on stdio exposing the feedback tool.\n" +
			"Heartbeats are sent while the server runs, when the API key and the server slug are configured.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tool, err := feedbacktool.New(client.New(cfg))
	if err != nil {
		return err
	}
	tool.WithCallback(callbacks.NewPackageLogger(logger))

	server := mcp.NewServer(stdio.NewStdioServerTransport())
	if err := tool.RegisterMCP(server); err != nil {
		return err
	}

	mw, err := middleware.StartMiddleware(ctx, nil, middleware.WithConfig(cfg), middleware.WithTools(tool))
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "heartbeat", "err", err.Error())
	}
	defer mw.Stop()

	if err := server.Serve(); err != nil {
		return errors.Wrap(err, "failed to start MCP server")
	}
	<-ctx.Done()
	return nil
}
