package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/pushry/internal/cohort"
)

var (
	cohortIDs string
	cohortCSV string
)

var cohortCmd = &cobra.Command{
	Use:   "cohort",
	Short: "Manage named agent cohorts",
}

var cohortListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cohorts",
	RunE:  runCohortList,
}

var cohortShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show cohort members",
	Args:  cobra.ExactArgs(1),
	RunE:  runCohortShow,
}

var cohortCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a cohort from --ids and/or --csv",
	Args:  cobra.ExactArgs(1),
	RunE:  runCohortCreate,
}

var cohortUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Replace the members of a cohort",
	Args:  cobra.ExactArgs(1),
	RunE:  runCohortUpdate,
}

var cohortDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a cohort",
	Args:  cobra.ExactArgs(1),
	RunE:  runCohortDelete,
}

func init() {
	for _, c := range []*cobra.Command{cohortCreateCmd, cohortUpdateCmd} {
		c.Flags().StringVar(&cohortIDs, "ids", "", "agent ids (comma or newline separated)")
		c.Flags().StringVar(&cohortCSV, "csv", "", "CSV file with a cpId column")
	}

	cohortCmd.AddCommand(cohortListCmd, cohortShowCmd, cohortCreateCmd, cohortUpdateCmd, cohortDeleteCmd)
	rootCmd.AddCommand(cohortCmd)
}

func openCohorts() (*cohort.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cohort.NewStore(cfg.Storage.CohortsFile), nil
}

// memberIDs reads cohort members from the --ids and --csv flags
func memberIDs() ([]string, error) {
	ids, err := readIDs(cohortIDs, cohortCSV)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no members: use --ids or --csv")
	}
	return ids, nil
}

func runCohortList(cmd *cobra.Command, args []string) error {
	store, err := openCohorts()
	if err != nil {
		return err
	}

	cohorts, err := store.List()
	if err != nil {
		return err
	}
	if len(cohorts) == 0 {
		fmt.Println("No cohorts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMEMBERS")
	fmt.Fprintln(w, "----\t-------")
	for _, c := range cohorts {
		fmt.Fprintf(w, "%s\t%d\n", c.Name, len(c.MemberIDs))
	}
	return w.Flush()
}

func runCohortShow(cmd *cobra.Command, args []string) error {
	store, err := openCohorts()
	if err != nil {
		return err
	}

	c, err := store.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Cohort:  %s\n", c.Name)
	fmt.Printf("Members: %d\n", len(c.MemberIDs))
	for _, id := range c.MemberIDs {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

func runCohortCreate(cmd *cobra.Command, args []string) error {
	store, err := openCohorts()
	if err != nil {
		return err
	}
	ids, err := memberIDs()
	if err != nil {
		return err
	}

	c, err := store.Create(args[0], ids)
	if err != nil {
		return err
	}
	fmt.Printf("Cohort %s created with %d members\n", c.Name, len(c.MemberIDs))
	return nil
}

func runCohortUpdate(cmd *cobra.Command, args []string) error {
	store, err := openCohorts()
	if err != nil {
		return err
	}
	ids, err := memberIDs()
	if err != nil {
		return err
	}

	c, err := store.Update(args[0], ids)
	if err != nil {
		return err
	}
	fmt.Printf("Cohort %s now has %d members\n", c.Name, len(c.MemberIDs))
	return nil
}

func runCohortDelete(cmd *cobra.Command, args []string) error {
	store, err := openCohorts()
	if err != nil {
		return err
	}
	if err := store.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Cohort %s deleted\n", args[0])
	return nil
}
