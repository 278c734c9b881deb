package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/postpilot/internal/registry"
	"github.com/user/postpilot/internal/types"
)

func init() {
	rootCmd.AddCommand(postCmd)
	postCmd.AddCommand(postListCmd, postShowCmd, postRetryCmd, postCancelCmd)
}

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Inspect and manage scheduled posts",
}

var postListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all posts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		store, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No posts yet. Run 'postpilot create' to make one.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tSCHEDULED\tATTEMPTS\tCONTENT")
		for _, record := range records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
				record.ID,
				displayStatus(record),
				record.ScheduledAt.Local().Format("2006-01-02 15:04"),
				record.Attempts,
				truncate(record.Content, 60),
			)
		}
		return w.Flush()
	},
}

var postShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one post in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		id, err := parsePostID(args[0])
		if err != nil {
			return err
		}

		store, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		record, err := store.Get(cmd.Context(), id)
		if err != nil {
			return err
		}

		fmt.Printf("Post %d (%s)\n", record.ID, displayStatus(record))
		fmt.Printf("Scheduled: %s\n", record.ScheduledAt.Local().Format("2006-01-02 15:04 MST"))
		if record.PublishedAt != nil {
			fmt.Printf("Published: %s\n", record.PublishedAt.Local().Format("2006-01-02 15:04 MST"))
		}
		if record.Attempts > 0 {
			fmt.Printf("Attempts:  %d\n", record.Attempts)
		}
		if record.LastError != "" {
			fmt.Printf("Last error: %s\n", record.LastError)
		}
		if record.Engagement != nil && record.Engagement.URL != "" {
			fmt.Printf("URL:       %s\n", record.Engagement.URL)
		}
		for _, attachment := range record.Attachments {
			fmt.Printf("Attachment: %s\n", attachment)
		}
		fmt.Printf("\n%s\n", record.Content)
		return nil
	},
}

var postRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Re-queue a failed post for immediate publishing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		id, err := parsePostID(args[0])
		if err != nil {
			return err
		}

		store, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		record, err := store.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		if record.Status != types.StatusFailed {
			return fmt.Errorf("post %d is %s, only failed posts can be retried", id, record.Status)
		}

		// Reset the attempt counter so the backoff starts fresh.
		if err := store.Reschedule(cmd.Context(), id, time.Now(), 0, ""); err != nil {
			return err
		}
		fmt.Printf("Post %d re-queued. The next publish cycle will pick it up.\n", id)
		return nil
	},
}

var postCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Withdraw a scheduled post before it publishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		id, err := parsePostID(args[0])
		if err != nil {
			return err
		}

		store, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Cancel(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Post %d cancelled. Use 'postpilot post retry %d' to re-queue it.\n", id, id)
		return nil
	},
}

// displayStatus tells a withdrawn post apart from a real publish failure.
func displayStatus(record *types.PostRecord) string {
	if record.Status == types.StatusFailed && record.LastError == registry.CancelledByUser {
		return "cancelled"
	}
	return string(record.Status)
}

func parsePostID(arg string) (types.PostID, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid post id: %s", arg)
	}
	return types.PostID(n), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
