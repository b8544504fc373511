package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/pushry/internal/campaign"
)

var campaignListLimit int

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Inspect the campaign history",
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded campaigns, newest first",
	RunE:  runCampaignList,
}

var campaignShowCmd = &cobra.Command{
	Use:   "show <campaign_id>",
	Short: "Show one campaign record",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignShow,
}

func init() {
	campaignListCmd.Flags().IntVar(&campaignListLimit, "limit", 20, "maximum number of campaigns (0 = all)")

	campaignCmd.AddCommand(campaignListCmd, campaignShowCmd)
	rootCmd.AddCommand(campaignCmd)
}

func openHistory() (*campaign.History, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return campaign.NewHistory(cfg.Storage.CampaignsFile), nil
}

func runCampaignList(cmd *cobra.Command, args []string) error {
	history, err := openHistory()
	if err != nil {
		return err
	}

	campaigns, err := history.List(campaignListLimit)
	if err != nil {
		return err
	}
	if len(campaigns) == 0 {
		fmt.Println("No campaigns recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tNAME\tSENT\tFAILED\tINVALID\tMODE\tID")
	fmt.Fprintln(w, "----\t----\t----\t------\t-------\t----\t--")
	for _, c := range campaigns {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			c.Timestamp.Format("2006-01-02 15:04"),
			truncate(c.Name, 30),
			c.TotalSent, c.TotalFailed, c.TotalInvalid,
			c.Mode, c.ID,
		)
	}
	return w.Flush()
}

func runCampaignShow(cmd *cobra.Command, args []string) error {
	history, err := openHistory()
	if err != nil {
		return err
	}

	c, err := history.Get(args[0])
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("campaign not found: %s", args[0])
	}

	fmt.Printf("ID:        %s\n", c.ID)
	fmt.Printf("Name:      %s\n", c.Name)
	fmt.Printf("Time:      %s\n", c.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("Mode:      %s\n", c.Mode)
	fmt.Printf("Title:     %s\n", c.Title)
	fmt.Printf("Body:      %s\n", c.Body)
	if len(c.Cohorts) > 0 {
		fmt.Printf("Cohorts:   %s (%s)\n", strings.Join(c.Cohorts, ", "), c.Logic)
	}
	fmt.Printf("Sent:      %d\n", c.TotalSent)
	fmt.Printf("Failed:    %d\n", c.TotalFailed)
	fmt.Printf("Invalid:   %d\n", c.TotalInvalid)
	if c.Skipped > 0 {
		fmt.Printf("Skipped:   %d\n", c.Skipped)
	}
	fmt.Printf("Duration:  %.2fs\n", c.DurationSeconds)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
