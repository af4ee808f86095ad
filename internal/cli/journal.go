package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	rediscommon "clinic-roomsync/common/redis"
	"clinic-roomsync/internal/config"
	"clinic-roomsync/internal/consumer"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().Int64P("count", "n", 20, "Number of most recent entries to show")
	journalCmd.Flags().String("stream", "", "Journal stream (default: JOURNAL_STREAM)")
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show the most recent realtime events from the Redis journal",
	Args:  cobra.NoArgs,
	RunE:  runJournal,
}

func runJournal(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	count, _ := cmd.Flags().GetInt64("count")
	stream, _ := cmd.Flags().GetString("stream")
	if stream == "" {
		stream = cfg.Journal.Stream
	}

	client := rediscommon.NewRedisClient(&cfg.Redis)
	defer rediscommon.Close(client)

	entries, err := consumer.Recent(cmd.Context(), client, stream, count)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No events in %s\n", stream)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tTYPE\tDATA")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Timestamp.Format(time.RFC3339), e.Type, string(e.Data))
	}
	return w.Flush()
}
