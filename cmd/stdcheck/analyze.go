package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/stdcheck/internal/api"
	"github.com/jackzampolin/stdcheck/internal/compliance"
	"github.com/jackzampolin/stdcheck/internal/export"
	"github.com/jackzampolin/stdcheck/internal/reports"
	"github.com/jackzampolin/stdcheck/internal/server"
	"github.com/jackzampolin/stdcheck/internal/server/endpoints"
)

var (
	analyzeInstruction string
	analyzeCheck       bool
	analyzeHTML        string
	analyzeXLSX        string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <report.pdf>",
	Short: "Extract report information from a PDF without a server",
	Long: `Analyze a tensile test report PDF in this process and store the result
in the local report history, the same way an upload to the server does.

Examples:
  stdcheck analyze report.pdf                     # Extract only
  stdcheck analyze report.pdf --check             # Extract, then check compliance
  stdcheck analyze report.pdf --check --html out.html --xlsx out.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

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

		instruction := analyzeInstruction
		if instruction == "" {
			instruction = mgr.Get().Vision.Instruction
		}

		svc := rt.Services.Reports
		report, err := svc.AnalyzeFile(ctx, args[0], instruction)
		if err != nil {
			return err
		}

		if analyzeCheck && report.Status == reports.StatusExtracted {
			checked, err := svc.Check(ctx, report.ID)
			if err != nil && !errors.Is(err, compliance.ErrEmptyReport) {
				return err
			}
			report = checked
		}

		if analyzeHTML != "" {
			page, err := endpoints.ReportPage(report)
			if err != nil {
				return err
			}
			if err := os.WriteFile(analyzeHTML, page, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %s\n", analyzeHTML)
		}
		if analyzeXLSX != "" {
			data, err := export.WorkbookXLSX(report)
			if err != nil {
				return err
			}
			if err := os.WriteFile(analyzeXLSX, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %s\n", analyzeXLSX)
		}

		return api.Output(report)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeInstruction, "instruction", "", "Extraction instruction (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeCheck, "check", false, "Run the compliance check after extraction")
	analyzeCmd.Flags().StringVar(&analyzeHTML, "html", "", "Write the rendered report page to this file")
	analyzeCmd.Flags().StringVar(&analyzeXLSX, "xlsx", "", "Write the report workbook to this file")

	rootCmd.AddCommand(analyzeCmd)
}
