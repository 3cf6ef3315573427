package main

import (
	"github.com/jackzampolin/stdcheck/internal/api"
	"github.com/jackzampolin/stdcheck/internal/server/endpoints"
)

var serverURL string

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	registry := api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{}) {
		registry.Register(ep)
	}
	apiCmd := registry.BuildCommands(getServerURL)

	// Persistent so all subcommands inherit it
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://127.0.0.1:7861", "Server URL",
	)

	rootCmd.AddCommand(apiCmd)
}
