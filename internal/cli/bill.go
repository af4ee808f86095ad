package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"clinic-roomsync/internal/billing"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newBillCmd())
}

func newBillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bill",
		Short: "Compute a discharge billing summary offline",
		Long: `Compute the billing summary a discharge would produce, without contacting
the backend. Stays shorter than 24 hours are prorated by the hour; longer stays
are billed per started day. Amounts are integer cents.`,
		Args: cobra.NoArgs,
		RunE: runBill,
	}

	defaults := billing.DefaultConfig()
	cmd.Flags().String("admitted", "", "Admission time (RFC3339)")
	cmd.Flags().String("discharged", "", "Discharge time (RFC3339, default now)")
	cmd.Flags().Int64("rate", -1, "Daily rate in cents (default: fallback rate)")
	cmd.Flags().Int64("additional", 0, "Additional charges in cents")
	cmd.Flags().Int64("tax-bp", defaults.TaxRateBasisPoints, "Tax rate in basis points")
	cmd.Flags().Int64("fallback-rate", defaults.FallbackDailyRateCents, "Fallback daily rate in cents")
	_ = cmd.MarkFlagRequired("admitted")
	return cmd
}

func runBill(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	admittedRaw, _ := flags.GetString("admitted")
	dischargedRaw, _ := flags.GetString("discharged")
	rate, _ := flags.GetInt64("rate")
	additional, _ := flags.GetInt64("additional")
	taxBP, _ := flags.GetInt64("tax-bp")
	fallback, _ := flags.GetInt64("fallback-rate")

	admitted, err := time.Parse(time.RFC3339, admittedRaw)
	if err != nil {
		return fmt.Errorf("invalid --admitted: %w", err)
	}
	discharged := time.Now()
	if dischargedRaw != "" {
		if discharged, err = time.Parse(time.RFC3339, dischargedRaw); err != nil {
			return fmt.Errorf("invalid --discharged: %w", err)
		}
	}

	calc := billing.NewCalculator(billing.Config{
		TaxRateBasisPoints:     taxBP,
		FallbackDailyRateCents: fallback,
	})
	if rate < 0 {
		rate = calc.FallbackDailyRateCents()
	}

	summary, err := calc.Calculate(admitted, discharged, rate, additional)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
