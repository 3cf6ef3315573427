package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/stdcheck/internal/api"
	"github.com/jackzampolin/stdcheck/internal/compliance"
	"github.com/jackzampolin/stdcheck/internal/reports"
	"github.com/jackzampolin/stdcheck/internal/svcctx"
)

// maxUploadBytes caps a single uploaded report.
const maxUploadBytes = 64 << 20

// ReportsResponse contains a page of reports.
type ReportsResponse struct {
	Reports []reports.Report `json:"reports"`
	Total   int              `json:"total"`
}

// UpdateReportRequest replaces the report info used for compliance checks.
type UpdateReportRequest struct {
	ReportInfo string `json:"report_info"`
}

// writeReportError maps report service errors to HTTP status codes.
func writeReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reports.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, reports.ErrNotPDF):
		writeError(w, http.StatusBadRequest, reports.MsgUploadRequired)
	case errors.Is(err, compliance.ErrEmptyReport):
		writeError(w, http.StatusBadRequest, reports.MsgAnalyzeFirst)
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func reportService(w http.ResponseWriter, r *http.Request) (*reports.Service, bool) {
	svc := svcctx.ReportsFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "report service not initialized")
		return nil, false
	}
	return svc, true
}

// UploadReportEndpoint handles POST /api/reports with a multipart PDF upload.
type UploadReportEndpoint struct{}

var _ api.Endpoint = (*UploadReportEndpoint)(nil)

func (e *UploadReportEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/reports", e.handler
}

func (e *UploadReportEndpoint) RequiresInit() bool { return true }

func (e *UploadReportEndpoint) Group() string { return "reports" }

// handler godoc
//
//	@Summary		Upload and analyze a report
//	@Description	Upload a tensile test report PDF; every page is sent to the vision model and the first usable answer becomes the report info
//	@Tags			reports
//	@Accept			mpfd
//	@Produce		json
//	@Param			file		formData	file	true	"Report PDF"
//	@Param			instruction	formData	string	false	"Extraction instruction (defaults to the configured one)"
//	@Success		200			{object}	reports.Report
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/reports [post]
func (e *UploadReportEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, reports.MsgUploadRequired)
		return
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	svc, ok := reportService(w, r)
	if !ok {
		return
	}

	instruction := r.FormValue("instruction")
	if instruction == "" {
		if cfg := svcctx.ConfigFrom(r.Context()); cfg != nil {
			instruction = cfg.Vision.Instruction
		}
	}

	report, err := svc.Analyze(r.Context(), fh.Filename, data, instruction)
	if err != nil {
		writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (e *UploadReportEndpoint) Command(getServerURL func() string) *cobra.Command {
	var instruction string
	var check bool
	cmd := &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a report PDF and extract its information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			fields := map[string]string{}
			if instruction != "" {
				fields["instruction"] = instruction
			}
			var report reports.Report
			if err := client.Upload(ctx, "/api/reports", args[0], fields, &report); err != nil {
				return err
			}
			if check && report.Status == reports.StatusExtracted {
				if err := client.Post(ctx, "/api/reports/"+report.ID+"/compliance", nil, &report); err != nil {
					return err
				}
			}
			return api.Output(report)
		},
	}
	cmd.Flags().StringVar(&instruction, "instruction", "", "Extraction instruction sent with every page")
	cmd.Flags().BoolVar(&check, "check", false, "Run the compliance check after extraction")
	return cmd
}

// ListReportsEndpoint handles GET /api/reports.
type ListReportsEndpoint struct{}

func (e *ListReportsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/reports", e.handler
}

func (e *ListReportsEndpoint) RequiresInit() bool { return true }

func (e *ListReportsEndpoint) Group() string { return "reports" }

// handler godoc
//
//	@Summary		List reports
//	@Description	Report history, newest first
//	@Tags			reports
//	@Produce		json
//	@Param			status	query		string	false	"Filter by status"
//	@Param			sha256	query		string	false	"Filter by file hash"
//	@Param			limit	query		int		false	"Max results (default 50)"
//	@Param			offset	query		int		false	"Result offset"
//	@Success		200		{object}	ReportsResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/reports [get]
func (e *ListReportsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc, ok := reportService(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := reports.ListFilter{
		Status: reports.Status(q.Get("status")),
		SHA256: q.Get("sha256"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q must be an integer", v))
			return
		}
		filter.Limit = limit
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid offset: %q must be an integer", v))
			return
		}
		filter.Offset = offset
	}

	list, err := svc.Store().List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ReportsResponse{Reports: list, Total: len(list)})
}

func (e *ListReportsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var status string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analyzed reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if status != "" {
				params.Set("status", status)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				params.Set("offset", strconv.Itoa(offset))
			}
			path := "/api/reports"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			var resp ReportsResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result offset")
	return cmd
}

// GetReportEndpoint handles GET /api/reports/{id}.
type GetReportEndpoint struct{}

func (e *GetReportEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/reports/{id}", e.handler
}

func (e *GetReportEndpoint) RequiresInit() bool { return true }

func (e *GetReportEndpoint) Group() string { return "reports" }

// handler godoc
//
//	@Summary		Get report by ID
//	@Tags			reports
//	@Produce		json
//	@Param			id	path		string	true	"Report ID"
//	@Success		200	{object}	reports.Report
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/reports/{id} [get]
func (e *GetReportEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc, ok := reportService(w, r)
	if !ok {
		return
	}
	report, err := svc.Store().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (e *GetReportEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var report reports.Report
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/reports/"+args[0], &report); err != nil {
				return err
			}
			return api.Output(report)
		},
	}
}

// UpdateReportEndpoint handles PATCH /api/reports/{id}.
type UpdateReportEndpoint struct{}

func (e *UpdateReportEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/reports/{id}", e.handler
}

func (e *UpdateReportEndpoint) RequiresInit() bool { return true }

func (e *UpdateReportEndpoint) Group() string { return "reports" }

// handler godoc
//
//	@Summary		Edit report info
//	@Description	Replace the text submitted for compliance checks; clears any earlier verdict
//	@Tags			reports
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Report ID"
//	@Param			request	body		UpdateReportRequest	true	"New report info"
//	@Success		200		{object}	reports.Report
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/reports/{id} [patch]
func (e *UpdateReportEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req UpdateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	svc, ok := reportService(w, r)
	if !ok {
		return
	}
	report, err := svc.UpdateInfo(r.Context(), r.PathValue("id"), req.ReportInfo)
	if err != nil {
		writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (e *UpdateReportEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <report-info|->",
		Short: "Replace a report's info (\"-\" reads stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := readArg(cmd, args[1])
			if err != nil {
				return err
			}
			var report reports.Report
			req := UpdateReportRequest{ReportInfo: info}
			if err := api.NewClient(getServerURL()).Patch(cmd.Context(), "/api/reports/"+args[0], req, &report); err != nil {
				return err
			}
			return api.Output(report)
		},
	}
}

// DeleteReportEndpoint handles DELETE /api/reports/{id}.
type DeleteReportEndpoint struct{}

func (e *DeleteReportEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/reports/{id}", e.handler
}

func (e *DeleteReportEndpoint) RequiresInit() bool { return true }

func (e *DeleteReportEndpoint) Group() string { return "reports" }

// handler godoc
//
//	@Summary		Delete a report
//	@Tags			reports
//	@Param			id	path	string	true	"Report ID"
//	@Success		204
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/reports/{id} [delete]
func (e *DeleteReportEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc, ok := reportService(w, r)
	if !ok {
		return
	}
	if err := svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeReportError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteReportEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a report and its upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := api.NewClient(getServerURL()).Delete(cmd.Context(), "/api/reports/"+args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted report %s\n", args[0])
			return nil
		},
	}
}

// readArg returns arg, or stdin when arg is "-".
func readArg(cmd *cobra.Command, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
