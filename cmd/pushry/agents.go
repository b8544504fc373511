package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/pushry/internal/app"
	"github.com/foxzi/pushry/internal/directory"
	"github.com/foxzi/pushry/internal/push"
)

var (
	agentsSearch string
	agentsLimit  int
	agentsOffset int
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage the agent directory",
}

var agentsImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import agents from CSV",
	Long: `Import or update agents from a CSV file with cpId, name and fsmToken columns.
Several tokens for one agent are separated by ';' in the fsmToken cell.`,
	Args: cobra.ExactArgs(1),
	RunE: runAgentsImport,
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents",
	RunE:  runAgentsList,
}

func init() {
	agentsListCmd.Flags().StringVar(&agentsSearch, "search", "", "filter by id or name")
	agentsListCmd.Flags().IntVar(&agentsLimit, "limit", 50, "maximum number of agents")
	agentsListCmd.Flags().IntVar(&agentsOffset, "offset", 0, "number of agents to skip")

	agentsCmd.AddCommand(agentsImportCmd, agentsListCmd)
	rootCmd.AddCommand(agentsCmd)
}

func openAgents() (*directory.Repository, *directory.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := app.OpenDirectory(cfg)
	if err != nil {
		return nil, nil, err
	}
	return directory.NewRepository(db.DB), db, nil
}

func runAgentsImport(cmd *cobra.Command, args []string) error {
	repo, db, err := openAgents()
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	result, err := repo.ImportCSV(context.Background(), f)
	if err != nil {
		return err
	}

	fmt.Printf("Rows:     %d\n", result.Total)
	fmt.Printf("Imported: %d\n", result.Imported)
	fmt.Printf("Skipped:  %d\n", result.Skipped)
	for _, e := range result.Errors {
		fmt.Printf("  %s\n", e)
	}
	return nil
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	repo, db, err := openAgents()
	if err != nil {
		return err
	}
	defer db.Close()

	agents, total, err := repo.List(context.Background(), directory.Filter{
		Search: agentsSearch,
		Limit:  agentsLimit,
		Offset: agentsOffset,
	})
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("No agents found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTOKENS\tUPDATED")
	fmt.Fprintln(w, "--\t----\t------\t-------")
	for _, a := range agents {
		tokens := make([]string, len(a.Tokens))
		for i, t := range a.Tokens {
			tokens[i] = push.TokenPrefix(t)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, truncate(a.Name, 30), strings.Join(tokens, " "), a.UpdatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	fmt.Printf("\nShowing %d of %d agents\n", len(agents), total)
	return nil
}
