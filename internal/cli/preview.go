package cli

import (
	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Fetch live rates and print the report without posting",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Preview(cmd.Context())
	},
}
