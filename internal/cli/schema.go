package cli

import (
	"fmt"

	"github.com/effective-security/patchwork/client"
	"github.com/effective-security/patchwork/encoding"
	"github.com/effective-security/patchwork/feedback"
	"github.com/effective-security/patchwork/pkg/llmutils"
	"github.com/effective-security/patchwork/tools/feedbacktool"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the feedback tool definition with its input schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tool, err := feedbacktool.New(client.New(cfg))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), llmutils.ToJSONIndent(tool.Definition()))
			return nil
		},
	}
}

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print an example feedback document for the feedback --file flag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")
			enc, err := encoding.NewEncoder(format, feedback.Request{})
			if err != nil {
				return exitError(exitInvalidInput, "%s", err.Error())
			}
			bs, err := enc.Example()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(bs))
			return nil
		},
	}
	cmd.Flags().String("format", encoding.ModeYAML, "Format: json | yaml | toml")
	return cmd
}
