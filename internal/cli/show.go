package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gold-rate-bot/internal/app"
)

var (
	showLimit      int
	showDeliveries bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent report cycles or delivery outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:      showLimit,
			Deliveries: showDeliveries,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showDeliveries, "deliveries", false, "Show delivery outcomes instead of samples")
}
