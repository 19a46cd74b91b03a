// Activity bot MCP server.
// Exposes activity bot tools over MCP stdio transport.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	mcptools "github.com/gateway-fm/activitybot/internal/mcp"
)

func main() {
	_ = godotenv.Load()

	botURL := os.Getenv("ACTIVITYBOT_URL")
	if botURL == "" {
		botURL = "http://localhost:8080"
	}

	s := server.NewMCPServer(
		"activitybot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	client := mcptools.NewClient(botURL)
	mcptools.RegisterTools(s, client)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
