package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foxzi/pushry/internal/campaign"
	"github.com/foxzi/pushry/internal/cohort"
	"github.com/foxzi/pushry/internal/push"
	"github.com/foxzi/pushry/internal/recipients"
)

const previewRejected = 20

var (
	sendIDs          string
	sendCSV          string
	sendAll          bool
	sendCohorts      []string
	sendLogic        string
	sendTitle        string
	sendBody         string
	sendCampaignID   string
	sendCampaignName string
	sendClickAction  string
	sendRoute        string
	sendScreen       string
	sendPlatform     string
	sendBatchSize    int
	sendWorkers      int
	sendYes          bool
	sendDryRun       bool
	sendShowErrors   bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a push campaign",
	Long: `Resolve recipients, show what will be sent and send the campaign.

Recipient sources can be combined:
  --ids      comma or newline separated agent ids
  --csv      CSV file with a cpId column
  --all      every agent in the directory
  --cohort   cohort name, repeatable, combined with --logic AND|OR

Title and body may contain {name} (full name) and {firstname}.

Examples:
  pushry send -c config.yaml --all --title "Hi {name}" --body "New offers"
  pushry send -c config.yaml --cohort north --cohort gold --logic AND --title T --body B --yes`,
	RunE: runSend,
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendIDs, "ids", "", "agent ids (comma or newline separated)")
	f.StringVar(&sendCSV, "csv", "", "CSV file with a cpId column")
	f.BoolVar(&sendAll, "all", false, "send to all agents")
	f.StringArrayVar(&sendCohorts, "cohort", nil, "cohort name (repeatable)")
	f.StringVar(&sendLogic, "logic", "OR", "cohort combination: AND or OR")
	f.StringVar(&sendTitle, "title", "", "notification title")
	f.StringVar(&sendBody, "body", "", "notification body")
	f.StringVar(&sendCampaignID, "campaign-id", "", "campaign id (default: generated)")
	f.StringVar(&sendCampaignName, "campaign-name", "", "campaign name (default: title)")
	f.StringVar(&sendClickAction, "click-action", "", "override click action")
	f.StringVar(&sendRoute, "route", "", "app route opened on click")
	f.StringVar(&sendScreen, "screen", "", "app screen opened on click")
	f.StringVar(&sendPlatform, "platform", "", "force platform: auto, android, ios")
	f.IntVar(&sendBatchSize, "batch-size", 0, "tokens per batch (50..500)")
	f.IntVar(&sendWorkers, "workers", 0, "parallel batches (1..20)")
	f.BoolVarP(&sendYes, "yes", "y", false, "do not ask for confirmation")
	f.BoolVar(&sendDryRun, "dry-run", false, "resolve and show recipients without sending")
	f.BoolVar(&sendShowErrors, "show-errors", false, "print every error line")

	sendCmd.MarkFlagRequired("title")
	sendCmd.MarkFlagRequired("body")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	sel, err := buildSelection(sendIDs, sendCSV, sendAll, sendCohorts, sendLogic)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	core, err := openCore(ctx)
	if err != nil {
		return err
	}
	defer core.Close()

	req := campaign.Request{
		Title:         sendTitle,
		Body:          sendBody,
		Selection:     sel,
		CampaignID:    sendCampaignID,
		CampaignName:  sendCampaignName,
		ClickAction:   sendClickAction,
		Route:         sendRoute,
		Screen:        sendScreen,
		ForcePlatform: sendPlatform,
		BatchSize:     sendBatchSize,
		Workers:       sendWorkers,
	}

	plan, err := core.Runner.Prepare(ctx, req)
	if plan != nil {
		printPlan(os.Stdout, plan)
	}
	if err != nil {
		return err
	}

	if sendDryRun {
		return nil
	}

	if !sendYes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("stdin is not a terminal, use --yes to send without confirmation")
		}
		question := fmt.Sprintf("Send to %d tokens (%s mode)?", len(plan.Resolution.Tokens), core.Config.Dispatch.Mode)
		if !confirm(os.Stdin, os.Stdout, question) {
			fmt.Println("Aborted")
			return nil
		}
	}

	report, err := core.Runner.Execute(ctx, plan, progressPrinter(os.Stderr))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	fmt.Println()
	report.Write(os.Stdout, sendShowErrors)
	if report.Result.Cancelled() {
		return errors.New("campaign interrupted")
	}
	return nil
}

// buildSelection combines the recipient flags
func buildSelection(ids, csvPath string, all bool, cohorts []string, logic string) (recipients.Selection, error) {
	sel := recipients.Selection{
		All:     all,
		Cohorts: cohort.Dedup(cohorts),
	}

	if len(sel.Cohorts) > 0 {
		l, err := cohort.ParseLogic(logic)
		if err != nil {
			return sel, err
		}
		sel.Logic = l
	}

	var err error
	if sel.IDs, err = readIDs(ids, csvPath); err != nil {
		return sel, err
	}

	if !sel.All && len(sel.IDs) == 0 && len(sel.Cohorts) == 0 {
		return sel, fmt.Errorf("no recipients: use --ids, --csv, --all or --cohort")
	}
	return sel, nil
}

// readIDs merges manual ids with the cpId column of an optional CSV file
func readIDs(ids, csvPath string) ([]string, error) {
	out := recipients.ParseManualIDs(ids)
	if csvPath == "" {
		return out, nil
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	csvIDs, err := recipients.ParseCSVIDs(f)
	if err != nil {
		return nil, err
	}
	return cohort.Dedup(append(out, csvIDs...)), nil
}

func printPlan(w io.Writer, plan *campaign.Plan) {
	res := plan.Resolution

	byChannel := make(map[push.Channel]int)
	for _, tok := range res.Tokens {
		byChannel[tok.Channel]++
	}

	fmt.Fprintf(w, "Campaign:  %s (%s)\n", plan.Config.CampaignName, plan.Config.CampaignID)
	fmt.Fprintf(w, "Agents:    %d\n", len(res.AgentIDs))
	fmt.Fprintf(w, "Tokens:    %d (iOS: %d, Android: %d, Universal: %d, Unknown: %d)\n",
		len(res.Tokens),
		byChannel[push.ChannelIOS], byChannel[push.ChannelAndroid],
		byChannel[push.ChannelUniversal], byChannel[push.ChannelUnknown])
	if res.Duplicates > 0 {
		fmt.Fprintf(w, "Duplicate: %d tokens dropped\n", res.Duplicates)
	}
	if len(res.Missing) > 0 {
		fmt.Fprintf(w, "Missing:   %d agents without a token\n", len(res.Missing))
	}
	if len(res.Rejected) > 0 {
		fmt.Fprintf(w, "Rejected:  %d malformed tokens\n", len(res.Rejected))
		for i, tok := range res.Rejected {
			if i == previewRejected {
				fmt.Fprintf(w, "  ... and %d more\n", len(res.Rejected)-previewRejected)
				break
			}
			fmt.Fprintf(w, "  %s\n", push.TokenPrefix(tok.Value))
		}
	}
	fmt.Fprintf(w, "Batches:   size %d, %d workers\n", plan.Config.BatchSize, plan.Config.MaxParallelWorkers)
}

// confirm asks a yes/no question, defaulting to no
func confirm(r io.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", question)
	answer, _ := bufio.NewReader(r).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func progressPrinter(w io.Writer) push.ProgressFunc {
	return func(completed, total int) {
		pct := 0
		if total > 0 {
			pct = completed * 100 / total
		}
		fmt.Fprintf(w, "\rSending: %d/%d (%d%%)", completed, total, pct)
	}
}
