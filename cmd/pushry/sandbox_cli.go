package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/pushry/internal/app"
	"github.com/foxzi/pushry/internal/push"
	"github.com/foxzi/pushry/internal/sandbox"
)

var (
	sandboxCampaign   string
	sandboxPlatform   string
	sandboxFailedOnly bool
	sandboxListLimit  int
	sandboxShowFormat string
	sandboxClearAge   time.Duration
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Inspect messages captured in sandbox mode",
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured messages",
	RunE:  runSandboxList,
}

var sandboxShowCmd = &cobra.Command{
	Use:   "show <message_id>",
	Short: "Show captured message details",
	Args:  cobra.ExactArgs(1),
	RunE:  runSandboxShow,
}

var sandboxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear captured messages",
	RunE:  runSandboxClear,
}

var sandboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sandbox statistics",
	RunE:  runSandboxStats,
}

func init() {
	sandboxListCmd.Flags().StringVar(&sandboxCampaign, "campaign", "", "Filter by campaign id")
	sandboxListCmd.Flags().StringVar(&sandboxPlatform, "platform", "", "Filter by platform (android, ios)")
	sandboxListCmd.Flags().BoolVar(&sandboxFailedOnly, "failed", false, "Only messages with a simulated error")
	sandboxListCmd.Flags().IntVar(&sandboxListLimit, "limit", 50, "Maximum number of messages")

	sandboxShowCmd.Flags().StringVar(&sandboxShowFormat, "format", "text", "Output format (text, json)")

	sandboxClearCmd.Flags().StringVar(&sandboxCampaign, "campaign", "", "Clear only one campaign")
	sandboxClearCmd.Flags().DurationVar(&sandboxClearAge, "older-than", 0, "Clear messages older than this (e.g. 72h)")

	sandboxCmd.AddCommand(sandboxListCmd, sandboxShowCmd, sandboxClearCmd, sandboxStatsCmd)
	rootCmd.AddCommand(sandboxCmd)
}

func openSandboxStorage() (*sandbox.Storage, *bolt.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, storage, err := app.OpenSandbox(cfg)
	if err != nil {
		return nil, nil, err
	}
	return storage, db, nil
}

func runSandboxList(cmd *cobra.Command, args []string) error {
	storage, db, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer db.Close()

	messages, err := storage.List(context.Background(), sandbox.ListFilter{
		CampaignID: sandboxCampaign,
		Platform:   sandboxPlatform,
		FailedOnly: sandboxFailedOnly,
		Limit:      sandboxListLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	if len(messages) == 0 {
		fmt.Println("No messages in sandbox")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLATFORM\tTOKEN\tTITLE\tERROR\tCAPTURED")
	fmt.Fprintln(w, "--\t--------\t-----\t-----\t-----\t--------")

	for _, msg := range messages {
		simErr := msg.SimulatedErr
		if simErr == "" {
			simErr = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			msg.ID,
			msg.Platform,
			push.TokenPrefix(msg.Token),
			truncate(msg.Title, 30),
			truncate(simErr, 30),
			msg.CapturedAt.Format("2006-01-02 15:04"),
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d messages\n", len(messages))

	return nil
}

func runSandboxShow(cmd *cobra.Command, args []string) error {
	storage, db, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer db.Close()

	id := args[0]
	msg, err := storage.Get(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("message not found: %s", id)
	}

	if sandboxShowFormat == "json" {
		var out bytes.Buffer
		if err := json.Indent(&out, msg.Payload, "", "  "); err != nil {
			return fmt.Errorf("failed to format payload: %w", err)
		}
		fmt.Println(out.String())
		return nil
	}

	fmt.Printf("Message: %s\n\n", msg.ID)
	fmt.Printf("Platform:   %s\n", msg.Platform)
	fmt.Printf("Token:      %s\n", msg.Token)
	fmt.Printf("Campaign:   %s\n", msg.CampaignID)
	fmt.Printf("Title:      %s\n", msg.Title)
	fmt.Printf("Body:       %s\n", msg.Body)
	fmt.Printf("Captured:   %s\n", msg.CapturedAt.Format(time.RFC3339))

	if msg.SimulatedErr != "" {
		fmt.Printf("\nSimulated Error: %s\n", msg.SimulatedErr)
	}

	if len(msg.Data) > 0 {
		keys := make([]string, 0, len(msg.Data))
		for k := range msg.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Println("\nData:")
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, msg.Data[k])
		}
	}

	return nil
}

func runSandboxClear(cmd *cobra.Command, args []string) error {
	storage, db, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer db.Close()

	count, err := storage.Clear(context.Background(), sandboxCampaign, sandboxClearAge)
	if err != nil {
		return fmt.Errorf("failed to clear sandbox: %w", err)
	}

	if sandboxCampaign != "" {
		fmt.Printf("Cleared %d messages from sandbox for campaign %s\n", count, sandboxCampaign)
	} else {
		fmt.Printf("Cleared %d messages from sandbox\n", count)
	}

	return nil
}

func runSandboxStats(cmd *cobra.Command, args []string) error {
	storage, db, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := storage.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get sandbox stats: %w", err)
	}

	fmt.Println("Sandbox Statistics")
	fmt.Println("==================")
	fmt.Printf("Total Messages:   %d\n", stats.Total)
	fmt.Printf("Simulated Errors: %d\n", stats.Failed)

	if len(stats.ByPlatform) > 0 {
		fmt.Println("\nBy Platform:")
		for platform, count := range stats.ByPlatform {
			fmt.Printf("  %s: %d\n", platform, count)
		}
	}

	if len(stats.ByCampaign) > 0 {
		fmt.Println("\nBy Campaign:")
		for id, count := range stats.ByCampaign {
			fmt.Printf("  %s: %d\n", id, count)
		}
	}

	if !stats.OldestAt.IsZero() {
		fmt.Printf("\nOldest Message: %s\n", stats.OldestAt.Format(time.RFC3339))
	}
	if !stats.NewestAt.IsZero() {
		fmt.Printf("Newest Message: %s\n", stats.NewestAt.Format(time.RFC3339))
	}

	return nil
}
