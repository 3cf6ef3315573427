package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/stdcheck/internal/compliance"
	"github.com/jackzampolin/stdcheck/internal/reports"
	"github.com/jackzampolin/stdcheck/internal/server"
)

var checkCmd = &cobra.Command{
	Use:   "check <report-info|->",
	Short: "Check report information against national standards without a server",
	Long: `Submit report information to the knowledge engine and print its verdict.
Pass "-" to read the report information from stdin.

Examples:
  stdcheck check '{"抗拉强度": "585 MPa"}'
  stdcheck api reports get <id> -o json | jq -r .report_info | stdcheck check -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		info, err := readArg(args[0])
		if err != nil {
			return err
		}

		logger, err := newLogger(os.Stderr)
		if err != nil {
			return err
		}
		h, mgr, err := loadConfig()
		if err != nil {
			return err
		}

		rt, err := server.NewRuntime(ctx, server.Deps{ConfigManager: mgr, Home: h, Logger: logger})
		if err != nil {
			return err
		}
		defer rt.Close(context.WithoutCancel(ctx))

		verdict, outcome, err := rt.Services.Reports.CheckText(ctx, info)
		if errors.Is(err, compliance.ErrEmptyReport) {
			return errors.New(reports.MsgAnalyzeFirst)
		}
		if err != nil {
			return fmt.Errorf("%s%w", reports.MsgComplianceFailed, err)
		}

		fmt.Fprintf(os.Stderr, "Outcome: %s\n\n", outcome)
		fmt.Println(verdict)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
