package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harms-haus/jestir/internal/config"
	"github.com/harms-haus/jestir/internal/contextfile"
	"github.com/harms-haus/jestir/internal/graph"
	"github.com/harms-haus/jestir/internal/validate"
)

func validateCmd() *cobra.Command {
	var strict, remote bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the context file for structural problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(strict, remote)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as failures")
	cmd.Flags().BoolVar(&remote, "remote", false, "also check linked entities against the graph")
	return cmd
}

func runValidate(strict, remote bool) error {
	ctx := context.Background()

	sc, err := contextfile.NewStore(contextPath).Load()
	if err != nil {
		return err
	}

	var checker validate.RemoteChecker
	if remote {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		checker = graph.NewClient(cfg.Graph)
	}

	report, err := validate.Run(ctx, sc, checker)
	if err != nil {
		return err
	}

	var errorIssues, warnIssues []validate.Issue
	for _, issue := range report.Issues {
		switch issue.Severity {
		case validate.SeverityError:
			errorIssues = append(errorIssues, issue)
		case validate.SeverityWarn:
			warnIssues = append(warnIssues, issue)
		}
	}

	if len(errorIssues) == 0 && len(warnIssues) == 0 {
		fmt.Fprintln(os.Stdout, "No issues found.")
		return nil
	}

	if len(errorIssues) > 0 {
		fmt.Fprintf(os.Stdout, "Errors (%d):\n", len(errorIssues))
		printIssues(os.Stdout, errorIssues)
	}
	if len(warnIssues) > 0 {
		if len(errorIssues) > 0 {
			fmt.Fprintln(os.Stdout, "")
		}
		fmt.Fprintf(os.Stdout, "Warnings (%d):\n", len(warnIssues))
		printIssues(os.Stdout, warnIssues)
	}

	if len(errorIssues) > 0 {
		return fmt.Errorf("validation found errors")
	}
	if strict && len(warnIssues) > 0 {
		return fmt.Errorf("validation found warnings (strict mode)")
	}
	return nil
}

func printIssues(out *os.File, issues []validate.Issue) {
	for _, issue := range issues {
		if issue.Entity != "" {
			fmt.Fprintf(out, "  - %s: %s (%s)\n", issue.Entity, issue.Message, issue.Code)
			continue
		}
		fmt.Fprintf(out, "  - %s (%s)\n", issue.Message, issue.Code)
	}
}
