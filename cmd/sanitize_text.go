package cmd

import (
	"fmt"

	"github.com/agentic-research/commentprep/internal/config"
	"github.com/agentic-research/commentprep/internal/sanitize"
	"github.com/spf13/cobra"
)

var sanitizeTextCmd = &cobra.Command{
	Use:   "sanitize-text <text>",
	Short: "Print the sanitized form of a single text, without touching the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFile(config.Path(configPath))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), sanitize.Transform(args[0], cfg.Sanitize))
		return err
	},
}

func init() {
	rootCmd.AddCommand(sanitizeTextCmd)
}
