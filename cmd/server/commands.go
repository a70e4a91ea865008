package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/database"
	"github.com/libraryhub/backend/internal/gateway"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, err := database.InitDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(db, cfg.Database.Driver); err != nil {
				return err
			}
			version, err := database.CurrentVersion(db)
			if err != nil {
				return err
			}
			log.Printf("Schema at version %d", version)
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one overdue reconciliation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := newApp(config.Load())
			defer a.Close()

			result, err := a.services.Fines.UpdateFines(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
		},
	}
}

func newDashboardCmd() *cobra.Command {
	var (
		baseURL string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print a summary of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				baseURL = config.Load().GatewayURL
			}
			d, err := gateway.NewClient(baseURL, nil).Dashboard(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON || !term.IsTerminal(int(os.Stdout.Fd())) {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			return printDashboard(out, d)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "server base URL (defaults to gateway.url)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON even on a terminal")
	return cmd
}

func printDashboard(out io.Writer, d *gateway.Dashboard) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Generated\t%s\n", d.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Titles\t%d\n", d.Titles)
	fmt.Fprintf(tw, "Copies on loan\t%d / %d\n", d.CopiesOnLoan, d.TotalCopies)
	fmt.Fprintf(tw, "Members\t%d (%d active)\n", d.Members, d.ActiveMembers)
	fmt.Fprintf(tw, "Overdue loans\t%d\n", len(d.Overdue))
	if d.Pending != nil {
		fmt.Fprintf(tw, "Pending fines\t%d totalling %s\n", d.Pending.Count, d.Pending.Total.StringFixed(2))
	}
	if d.CollectedMonth != nil {
		fmt.Fprintf(tw, "Collected this month\t%s\n", d.CollectedMonth.Total.StringFixed(2))
	}
	if d.NotificationStat != nil {
		fmt.Fprintf(tw, "Notifications sent\t%d\n", d.NotificationStat.Total)
	}

	if len(d.Overdue) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "TX\tMEMBER\tBOOK\tDUE")
		for _, t := range d.Overdue {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", t.ID, t.MemberID, t.BookID, t.DueDate.Format("2006-01-02"))
		}
	}
	return tw.Flush()
}
