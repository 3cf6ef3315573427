package endpoints

import (
	"github.com/jackzampolin/stdcheck/internal/api"
	"github.com/jackzampolin/stdcheck/internal/knowledge"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	Docker          *knowledge.DockerManager
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{Docker: cfg.Docker},

		// Report endpoints
		&UploadReportEndpoint{},
		&ListReportsEndpoint{},
		&GetReportEndpoint{},
		&UpdateReportEndpoint{},
		&DeleteReportEndpoint{},
		&CheckReportEndpoint{},
		&ReportHTMLEndpoint{},
		&ExportReportEndpoint{},

		// Ad hoc compliance check
		&CheckTextEndpoint{},

		// Call log endpoints
		&ListCallsEndpoint{},
		&GetCallEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},

		// Static files (catch-all, must be last)
		&StaticEndpoint{},
	}
}
