package endpoints

import (
	"fmt"
	"html/template"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/stdcheck/internal/api"
	"github.com/jackzampolin/stdcheck/internal/export"
	"github.com/jackzampolin/stdcheck/internal/render"
	"github.com/jackzampolin/stdcheck/internal/reports"
	"github.com/jackzampolin/stdcheck/internal/svcctx"
)

// ReportPage renders a stored report as a standalone HTML document.
func ReportPage(report *reports.Report) ([]byte, error) {
	body := render.RawText(report.ReportInfo)
	if report.HasRecord() {
		rendered, err := render.Record(report.Record)
		if err != nil {
			return nil, err
		}
		body = rendered
	}

	data := render.PageData{
		Title:   report.Filename,
		Status:  string(report.Status),
		Message: report.Message,
		Body:    body,
	}
	if report.Verdict != "" {
		var verdict template.HTML
		verdict, data.Outcome = render.Verdict(report.Verdict)
		data.Verdict = verdict
	}
	return render.Page(data)
}

// ReportHTMLEndpoint handles GET /api/reports/{id}/html.
type ReportHTMLEndpoint struct{}

var _ api.Endpoint = (*ReportHTMLEndpoint)(nil)

func (e *ReportHTMLEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/reports/{id}/html", e.handler
}

func (e *ReportHTMLEndpoint) RequiresInit() bool { return true }

func (e *ReportHTMLEndpoint) Group() string { return "reports" }

// handler godoc
//
//	@Summary		Render a report as HTML
//	@Description	Record fields grouped into product, conditions, results and conclusion tables, followed by the verdict
//	@Tags			reports
//	@Produce		html
//	@Param			id	path	string	true	"Report ID"
//	@Success		200	{string}	string
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/reports/{id}/html [get]
func (e *ReportHTMLEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc, ok := reportService(w, r)
	if !ok {
		return
	}
	report, err := svc.Store().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeReportError(w, err)
		return
	}
	page, err := ReportPage(report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (e *ReportHTMLEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "html <id>",
		Short: "Render a report as an HTML page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := api.NewClient(getServerURL()).Download(cmd.Context(), "/api/reports/"+args[0]+"/html")
			if err != nil {
				return err
			}
			if outputFile == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(outputFile, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "file", "f", "", "Write to file instead of stdout")
	return cmd
}

// ExportReportEndpoint handles GET /api/reports/{id}/export.
type ExportReportEndpoint struct{}

func (e *ExportReportEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/reports/{id}/export", e.handler
}

func (e *ExportReportEndpoint) RequiresInit() bool { return true }

func (e *ExportReportEndpoint) Group() string { return "reports" }

// handler godoc
//
//	@Summary		Export a report as XLSX
//	@Description	Workbook with the report summary, flattened record, page outcomes and verdict. A copy is kept in the exports directory.
//	@Tags			reports,export
//	@Produce		application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//	@Param			id	path	string	true	"Report ID"
//	@Success		200	{file}	file
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/reports/{id}/export [get]
func (e *ExportReportEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc, ok := reportService(w, r)
	if !ok {
		return
	}
	report, err := svc.Store().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeReportError(w, err)
		return
	}

	data, err := export.WorkbookXLSX(report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if homeDir := svcctx.HomeFrom(r.Context()); homeDir != nil {
		path := homeDir.ExportPath(report.ID)
		if err := os.MkdirAll(homeDir.ExportsPath(), 0o755); err == nil {
			err = os.WriteFile(path, data, 0o644)
		}
		if err != nil {
			if logger := svcctx.LoggerFrom(r.Context()); logger != nil {
				logger.Warn("failed to keep export copy", "path", path, "error", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, report.ID))
	w.Write(data)
}

func (e *ExportReportEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Download a report workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := api.NewClient(getServerURL()).Download(cmd.Context(), "/api/reports/"+args[0]+"/export")
			if err != nil {
				return err
			}
			if outputFile == "" {
				outputFile = args[0] + ".xlsx"
			}
			if err := os.WriteFile(outputFile, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s (%d bytes)\n", outputFile, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputFile, "file", "f", "", "Output file (default <id>.xlsx)")
	return cmd
}
