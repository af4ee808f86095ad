package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "clinic-roomsync",
	Short: "Room and admission state sync for the clinic backend",
	Long: `clinic-roomsync keeps an in-process view of clinic rooms and patient
admissions in sync with the clinic backend. It combines REST snapshots with
realtime push events, validates admissions and discharges, computes billing,
and persists store snapshots and the realtime event journal in Redis.`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
