package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/stdcheck/internal/api"
	"github.com/jackzampolin/stdcheck/internal/compliance"
	"github.com/jackzampolin/stdcheck/internal/render"
	"github.com/jackzampolin/stdcheck/internal/reports"
)

// CheckRequest submits report info for an ad hoc compliance check.
type CheckRequest struct {
	ReportInfo string `json:"report_info"`
}

// CheckResponse is the verdict for an ad hoc check.
type CheckResponse struct {
	Verdict string         `json:"verdict"`
	Outcome render.Outcome `json:"outcome"`
	HTML    string         `json:"html"`
	Message string         `json:"message"`
}

// CheckReportEndpoint handles POST /api/reports/{id}/compliance.
type CheckReportEndpoint struct{}

var _ api.Endpoint = (*CheckReportEndpoint)(nil)

func (e *CheckReportEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/reports/{id}/compliance", e.handler
}

func (e *CheckReportEndpoint) RequiresInit() bool { return true }

func (e *CheckReportEndpoint) Group() string { return "reports" }

// handler godoc
//
//	@Summary		Check a report against national standards
//	@Description	Submits the report info to the knowledge engine. A failed check is recorded on the report (status check_failed) and still returns 200.
//	@Tags			reports,compliance
//	@Produce		json
//	@Param			id	path		string	true	"Report ID"
//	@Success		200	{object}	reports.Report
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/reports/{id}/compliance [post]
func (e *CheckReportEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc, ok := reportService(w, r)
	if !ok {
		return
	}
	report, err := svc.Check(r.Context(), r.PathValue("id"))
	if err != nil {
		writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (e *CheckReportEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "check <id>",
		Short: "Run the compliance check for a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var report reports.Report
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), "/api/reports/"+args[0]+"/compliance", nil, &report); err != nil {
				return err
			}
			return api.Output(report)
		},
	}
}

// CheckTextEndpoint handles POST /api/compliance.
type CheckTextEndpoint struct{}

func (e *CheckTextEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/compliance", e.handler
}

func (e *CheckTextEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Check report info text
//	@Description	Runs the compliance query for text that is not stored as a report
//	@Tags			compliance
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CheckRequest	true	"Report info"
//	@Success		200		{object}	CheckResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Router			/api/compliance [post]
func (e *CheckTextEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	svc, ok := reportService(w, r)
	if !ok {
		return
	}

	verdict, outcome, err := svc.CheckText(r.Context(), req.ReportInfo)
	switch {
	case errors.Is(err, compliance.ErrEmptyReport):
		writeError(w, http.StatusBadRequest, reports.MsgAnalyzeFirst)
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, reports.MsgComplianceFailed+err.Error())
		return
	}

	html, _ := render.Verdict(verdict)
	writeJSON(w, http.StatusOK, CheckResponse{
		Verdict: verdict,
		Outcome: outcome,
		HTML:    string(html),
		Message: reports.MsgComplianceDone,
	})
}

func (e *CheckTextEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "check <report-info|->",
		Short: "Check report info text against national standards (\"-\" reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := readArg(cmd, args[0])
			if err != nil {
				return err
			}
			var resp CheckResponse
			req := CheckRequest{ReportInfo: strings.TrimSpace(info)}
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), "/api/compliance", req, &resp); err != nil {
				return err
			}
			resp.HTML = ""
			return api.Output(resp)
		},
	}
}
