package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/visibility-cli/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status <url>",
	Short: "Show the pipeline position of a domain's latest run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		domain, err := st.GetDomainByURL(ctx, args[0])
		if err != nil {
			return err
		}
		if domain == nil {
			return eris.Errorf("domain not found: %s", args[0])
		}
		version, err := st.GetLatestVersion(ctx, domain.ID)
		if err != nil {
			return err
		}
		if version == nil {
			return eris.New("domain has no analysis runs")
		}
		progress, err := st.GetProgress(ctx, domain.ID, version.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Domain:  %s (%s)\n", domain.URL, domain.ID)
		fmt.Fprintf(out, "Run:     %s (started %s)\n", version.ID, version.CreatedAt.Format("2006-01-02 15:04"))
		if progress == nil {
			fmt.Fprintln(out, "Stage:   not started")
			return nil
		}
		for s := model.StepSubmission; s <= model.TerminalStep; s++ {
			mark := " "
			switch {
			case s < progress.CurrentStep || progress.IsCompleted:
				mark = "x"
			case s == progress.CurrentStep:
				mark = ">"
			}
			fmt.Fprintf(out, "  [%s] %s\n", mark, s)
		}
		if progress.IsCompleted {
			fmt.Fprintln(out, "Status:  completed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
