package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/stdcheck/internal/api"
	"github.com/jackzampolin/stdcheck/internal/knowledge"
	"github.com/jackzampolin/stdcheck/internal/providers"
	"github.com/jackzampolin/stdcheck/internal/svcctx"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Knowledge string `json:"knowledge,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Health check
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Readiness check
//	@Description	OK only when the knowledge engine answers its health check. The first call starts the engine.
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Knowledge: "ok"}

	handle := svcctx.KnowledgeFrom(r.Context())
	if handle == nil {
		resp.Status = "degraded"
		resp.Knowledge = "not_initialized"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if err := handle.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Knowledge = "unhealthy"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (includes the knowledge engine)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status:    %s\n", resp.Status)
			if resp.Knowledge != "" {
				fmt.Printf("Knowledge: %s\n", resp.Knowledge)
			}
			return nil
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server     string          `json:"server"`
	ConfigFile string          `json:"config_file,omitempty"`
	Vision     VisionStatus    `json:"vision"`
	Knowledge  KnowledgeStatus `json:"knowledge"`
}

// VisionStatus shows the active vision client.
type VisionStatus struct {
	Client    string                       `json:"client"`
	Model     string                       `json:"model"`
	RateLimit *providers.RateLimiterStatus `json:"rate_limit,omitempty"`
}

// KnowledgeStatus shows the engine handle and, when Docker manages it, the
// container state.
type KnowledgeStatus struct {
	Handle    knowledge.Status `json:"handle"`
	Container string           `json:"container,omitempty"`
	URL       string           `json:"url,omitempty"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct {
	// Docker is set by the server when the engine runs in a container.
	Docker *knowledge.DockerManager
}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Detailed status
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Server: "running"}
	ctx := r.Context()

	if s := svcctx.ServicesFrom(ctx); s != nil && s.ConfigManager != nil {
		resp.ConfigFile = s.ConfigManager.ConfigFile()
	}

	if registry := svcctx.RegistryFrom(ctx); registry != nil {
		resp.Vision.Client = registry.Name()
		resp.Vision.Model = registry.Model()
		if st, ok := registry.LimiterStatus(); ok {
			resp.Vision.RateLimit = &st
		}
	}

	if handle := svcctx.KnowledgeFrom(ctx); handle != nil {
		resp.Knowledge.Handle = handle.Status()
	}
	if e.Docker != nil {
		status, err := e.Docker.Status(ctx)
		if err != nil {
			resp.Knowledge.Container = "error"
		} else {
			resp.Knowledge.Container = string(status)
		}
		resp.Knowledge.URL = e.Docker.URL()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
