package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/stdcheck/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stdcheck server",
	Long: `Start the stdcheck HTTP server and web page.

The LightRAG knowledge engine is contacted on the first compliance check.
When knowledge.docker.enabled is set, its container is started then and
stopped again when the server shuts down (via Ctrl+C or SIGTERM).

The server provides:
  - /                  - Upload and check page
  - /api/reports       - Report upload, history, edits and exports
  - /api/compliance    - Ad hoc compliance checks
  - /health, /ready    - Health checks (ready includes the knowledge engine)
  - /swagger           - API documentation

Examples:
  stdcheck serve                    # Start on 127.0.0.1:7861
  stdcheck serve --port 3000        # Start on custom port
  stdcheck serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := newLogger(os.Stdout)
		if err != nil {
			return err
		}

		h, mgr, err := loadConfig()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if file := mgr.ConfigFile(); file != "" {
			logger.Info("using config file", "path", file)
			mgr.WatchConfig()
		}

		cfg := mgr.Get()
		host, port := cfg.Server.Host, cfg.Server.Port
		if cmd.Flags().Changed("host") {
			host = serveHost
		}
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			Home:          h,
			ConfigManager: mgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to (overrides server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "7861", "Port to listen on (overrides server.port)")

	rootCmd.AddCommand(serveCmd)
}
