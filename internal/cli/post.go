package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var postWait time.Duration

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Post a single report immediately and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().PostOnce(cmd.Context(), postWait)
	},
}

func init() {
	postCmd.Flags().DurationVar(&postWait, "wait", 30*time.Second, "How long to wait for the connection to open")
}
