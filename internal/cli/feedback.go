package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/patchwork/client"
	"github.com/effective-security/patchwork/delivery"
	"github.com/effective-security/patchwork/encoding"
	"github.com/effective-security/patchwork/feedback"
	"github.com/spf13/cobra"
)

func newFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Send a feedback event",
		Long: "Send a feedback event from the flags, or from a JSON, YAML or TOML document.\n" +
			"Flags override the values of the document. Use \"-\" to read the document from stdin.",
		Args: cobra.NoArgs,
		RunE: runFeedback,
	}

	cmd.Flags().StringP("file", "f", "", "Feedback document, JSON, YAML or TOML")
	cmd.Flags().String("format", "", "Format of the document: json | yaml | toml, by file extension if not set")
	cmd.Flags().String("needed", "", "What capability, data, or tool was needed")
	cmd.Flags().String("tried", "", "What tools or approaches were tried")
	cmd.Flags().String("gap-type", "", "Gap category: missing_tool | incomplete_results | missing_parameter | wrong_format | other")
	cmd.Flags().String("suggestion", "", "What would have helped")
	cmd.Flags().String("user-goal", "", "The user's original goal")
	cmd.Flags().String("resolution", "", "What happened: blocked | worked_around | partial")
	cmd.Flags().StringSlice("tools", nil, "Tools considered or tried")
	cmd.Flags().String("agent-model", "", "Agent model identifier")
	cmd.Flags().String("session-id", "", "Session identifier")
	cmd.Flags().String("client-type", "", "MCP client in use")

	return cmd
}

func runFeedback(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	req, err := feedbackFromFlags(cmd)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return exitError(exitInvalidInput, "%s", err.Error())
	}

	res := client.New(cfg).Deliver(cmd.Context(), req)
	msg := client.Message(res)
	fmt.Fprintln(cmd.OutOrStdout(), msg)

	if res.Outcome != delivery.Delivered {
		return exitError(exitNotDelivered, "feedback not delivered: %s", res.Reason)
	}
	return nil
}

func feedbackFromFlags(cmd *cobra.Command) (*feedback.Request, error) {
	args := map[string]any{}

	if file, _ := cmd.Flags().GetString("file"); file != "" {
		doc, err := readDocument(cmd, file)
		if err != nil {
			return nil, err
		}
		args = doc
	}

	flags := map[string]string{
		"needed":      feedback.ArgWhatINeeded,
		"tried":       feedback.ArgWhatITried,
		"gap-type":    feedback.ArgGapType,
		"suggestion":  feedback.ArgSuggestion,
		"user-goal":   feedback.ArgUserGoal,
		"resolution":  feedback.ArgResolution,
		"agent-model": feedback.ArgAgentModel,
		"session-id":  feedback.ArgSessionID,
		"client-type": feedback.ArgClientType,
	}
	for flag, arg := range flags {
		if cmd.Flags().Changed(flag) {
			args[arg], _ = cmd.Flags().GetString(flag)
		}
	}
	if cmd.Flags().Changed("tools") {
		list, _ := cmd.Flags().GetStringSlice("tools")
		args[feedback.ArgToolsAvailable] = list
	}

	return feedback.FromArguments(args), nil
}

func readDocument(cmd *cobra.Command, file string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", file)
	}

	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = encoding.ModeFromFilename(file)
	}
	enc, err := encoding.NewEncoder(format, feedback.Request{})
	if err != nil {
		return nil, exitError(exitInvalidInput, "%s", err.Error())
	}

	var doc map[string]any
	if err := enc.Unmarshal(data, &doc); err != nil {
		return nil, exitError(exitInvalidInput, "failed to parse %s: %s", file, err.Error())
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}
