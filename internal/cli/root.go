// Package cli implements the patchwork command line.
package cli

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/patchwork/pkg/config"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/patchwork", "cli")

// NewRootCmd returns the root command with all subcommands.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "patchwork",
		Short: "Report agent feedback and server heartbeats to PatchworkMCP",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// stdout is reserved for command output and the MCP protocol
			xlog.SetFormatter(xlog.NewStringFormatter(cmd.ErrOrStderr()))
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				xlog.SetGlobalLogLevel(xlog.DEBUG)
			} else {
				xlog.SetGlobalLogLevel(xlog.WARNING)
			}
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "Configuration file, YAML or JSON")
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	root.PersistentFlags().String("url", "", "Base URL of the feedback service, overrides PATCHWORKMCP_URL")
	root.PersistentFlags().String("api-url", "", "Base URL of the API, overrides PATCHWORKMCP_API_URL")
	root.PersistentFlags().String("api-key", "", "API key, overrides PATCHWORKMCP_API_KEY")
	root.PersistentFlags().String("server-slug", "", "Server slug, overrides PATCHWORKMCP_SERVER_SLUG")

	root.AddCommand(newFeedbackCmd())
	root.AddCommand(newHeartbeatCmd())
	root.AddCommand(newSchemaCmd())
	root.AddCommand(newTemplateCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newServeCmd())

	return root
}

// loadConfig returns the configuration from the file and the environment,
// with the flag overrides applied.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load configuration")
	}

	if v, _ := cmd.Flags().GetString("url"); v != "" {
		cfg.URL = config.TrimURL(v)
	}
	if v, _ := cmd.Flags().GetString("api-url"); v != "" {
		cfg.APIURL = config.TrimURL(v)
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey, _ = cmd.Flags().GetString("api-key")
	}
	if v, _ := cmd.Flags().GetString("server-slug"); v != "" {
		cfg.ServerSlug = v
	}
	return cfg, nil
}
