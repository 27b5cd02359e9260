package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue progress, including rows claimed but never sanitized",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadRuntime()
		if err != nil {
			return err
		}
		defer env.close()

		s, err := openStore(cmd.Context(), env.cfg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		st, err := s.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "total:     %d\n", st.Total)
		fmt.Fprintf(out, "unclaimed: %d\n", st.Unclaimed)
		fmt.Fprintf(out, "claimed:   %d\n", st.Claimed)
		fmt.Fprintf(out, "orphaned:  %d\n", st.Orphaned)
		return nil
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Return claimed-but-unsanitized rows to the queue (do not run during a sanitize pass)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadRuntime()
		if err != nil {
			return err
		}
		defer env.close()

		s, err := openStore(cmd.Context(), env.cfg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		n, err := s.Requeue(cmd.Context())
		if err != nil {
			return err
		}
		env.logger.Info("requeued orphaned rows", "rows", n)
		fmt.Fprintf(cmd.OutOrStdout(), "requeued: %d\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(requeueCmd)
}
