package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/stdcheck/internal/api"
	"github.com/jackzampolin/stdcheck/internal/llmcall"
	"github.com/jackzampolin/stdcheck/internal/svcctx"
)

// CallsResponse contains a list of recorded calls.
type CallsResponse struct {
	Calls []llmcall.Call `json:"calls"`
	Total int            `json:"total"`
}

// ListCallsEndpoint handles GET /api/calls.
type ListCallsEndpoint struct{}

func (e *ListCallsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/calls", e.handler
}

func (e *ListCallsEndpoint) RequiresInit() bool { return true }

func (e *ListCallsEndpoint) Group() string { return "calls" }

// handler godoc
//
//	@Summary		List recorded calls
//	@Description	Every vision and knowledge-engine attempt, oldest first
//	@Tags			calls
//	@Produce		json
//	@Param			report_id	query		string	false	"Filter by report ID"
//	@Param			operation	query		string	false	"Filter by operation (vision.analyze, knowledge.query)"
//	@Param			success		query		bool	false	"Filter by success status (true or false)"
//	@Param			after		query		string	false	"Filter calls after this RFC3339 timestamp"
//	@Param			limit		query		int		false	"Max results (default 100)"
//	@Param			offset		query		int		false	"Result offset"
//	@Success		200			{object}	CallsResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/api/calls [get]
func (e *ListCallsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusInternalServerError, "call store not available")
		return
	}

	q := r.URL.Query()
	filter := llmcall.QueryFilter{
		ReportID:  q.Get("report_id"),
		Operation: q.Get("operation"),
	}

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid success filter: %q must be true or false", v))
			return
		}
		filter.Success = &b
	}
	if v := q.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid after time: %q must be RFC3339 format (e.g., 2024-01-15T00:00:00Z)", v))
			return
		}
		filter.After = &t
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
		filter.Limit = 100
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid offset: %q must be an integer", v))
			return
		}
		filter.Offset = offset
	}

	calls, err := store.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, CallsResponse{Calls: calls, Total: len(calls)})
}

func (e *ListCallsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var reportID, operation string
	var limit, offset int
	var successOnly, failedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if reportID != "" {
				params.Set("report_id", reportID)
			}
			if operation != "" {
				params.Set("operation", operation)
			}
			if successOnly {
				params.Set("success", "true")
			}
			if failedOnly {
				params.Set("success", "false")
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				params.Set("offset", strconv.Itoa(offset))
			}

			path := "/api/calls"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			var resp CallsResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&reportID, "report-id", "", "Filter by report ID")
	cmd.Flags().StringVar(&operation, "operation", "", "Filter by operation")
	cmd.Flags().BoolVar(&successOnly, "success", false, "Only successful calls")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only failed calls")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result offset")
	return cmd
}

// GetCallEndpoint handles GET /api/calls/{id}.
type GetCallEndpoint struct{}

func (e *GetCallEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/calls/{id}", e.handler
}

func (e *GetCallEndpoint) RequiresInit() bool { return true }

func (e *GetCallEndpoint) Group() string { return "calls" }

// handler godoc
//
//	@Summary		Get a recorded call
//	@Tags			calls
//	@Produce		json
//	@Param			id	path		string	true	"Call ID"
//	@Success		200	{object}	llmcall.Call
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/calls/{id} [get]
func (e *GetCallEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusInternalServerError, "call store not available")
		return
	}
	call, err := store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if call == nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (e *GetCallEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a recorded call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var call llmcall.Call
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/calls/"+args[0], &call); err != nil {
				return err
			}
			return api.Output(call)
		},
	}
}
