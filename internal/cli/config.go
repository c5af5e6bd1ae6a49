package cli

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.APIKey != "" {
				cfg.APIKey = "***"
			}
			bs, err := yaml.Marshal(cfg)
			if err != nil {
				return errors.WithStack(err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(bs))
			return nil
		},
	}
}
