package mcp

import (
	"context"
	"fmt"
	"net/url"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers all activity bot tools on the MCP server.
func RegisterTools(s *server.MCPServer, client *Client) {
	registerStatus(s, client)
	registerHealth(s, client)
	registerStart(s, client)
	registerStop(s, client)
	registerGetConfig(s, client)
	registerSetConfig(s, client)
	registerLogs(s, client)
	registerClearLogs(s, client)
	registerWallets(s, client)
	registerClaimFaucet(s, client)
	registerHistory(s, client)
	registerCycleOperations(s, client)
}

func registerStatus(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("activity_status",
		gomcp.WithDescription("Get the activity bot status: run state, current account, repetitions, in-flight operations, next cycle time, confirmation latency."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/v1/status")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Activity bot unreachable: %v\n\nIs the bot running? Try: activitybot -listen :8080", err)), nil
		}
		return gomcp.NewToolResultText(formatStatus(raw)), nil
	})
}

func registerHealth(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("activity_health",
		gomcp.WithDescription("Quick health check for the activity bot. Checks chain RPC connectivity."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/ready")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Activity bot unhealthy: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHealth(raw)), nil
	})
}

func registerStart(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("activity_start",
		gomcp.WithDescription("Start the daily activity cycle now: bridges then stakes for every account, repeating every 24 hours. This is a MUTATING operation that sends transactions."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		if _, err := client.Post(ctx, "/v1/cycle/start", nil); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Start failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Daily Activity Started"),
			"Accounts are processed in order. Use activity_status or activity_logs to follow progress.",
		)), nil
	})
}

func registerStop(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("activity_stop",
		gomcp.WithDescription("Stop the daily activity. The current operation finishes first; a pending 24h recurrence is cancelled. This is a MUTATING operation."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Post(ctx, "/v1/cycle/stop", nil)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Stop failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Stop Requested"),
			kv("State", stateOf(raw)),
		)), nil
	})
}

func registerGetConfig(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("activity_get_config",
		gomcp.WithDescription("Get the activity config: bridge and stake repetitions and HLS amount ranges."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/v1/config")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Get config failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatConfig(raw)), nil
	})
}

// configArgs maps tool argument names to config JSON keys.
var configArgs = []struct {
	arg  string
	key  string
	desc string
}{
	{"bridge_repetitions", "bridgeRepetitions", "Bridges per account per cycle (whole number, at least 1)"},
	{"min_hls_bridge", "minHlsBridge", "Minimum HLS per bridge (at least 0.0001)"},
	{"max_hls_bridge", "maxHlsBridge", "Maximum HLS per bridge"},
	{"stake_repetitions", "stakeRepetitions", "Stakes per account per cycle (whole number, at least 1)"},
	{"min_hls_stake", "minHlsStake", "Minimum HLS per stake (at least 0.0001)"},
	{"max_hls_stake", "maxHlsStake", "Maximum HLS per stake"},
}

func registerSetConfig(s *server.MCPServer, client *Client) {
	opts := []gomcp.ToolOption{
		gomcp.WithDescription("Update the activity config. Only the given fields change; min must not exceed max. Takes effect from the next cycle. This is a MUTATING operation."),
	}
	for _, a := range configArgs {
		opts = append(opts, gomcp.WithNumber(a.arg, gomcp.Description(a.desc)))
	}
	tool := gomcp.NewTool("activity_set_config", opts...)

	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		args := req.GetArguments()
		payload := map[string]any{}
		for _, a := range configArgs {
			if _, ok := args[a.arg]; ok {
				payload[a.key] = req.GetFloat(a.arg, 0)
			}
		}
		if len(payload) == 0 {
			return gomcp.NewToolResultError("at least one config field is required"), nil
		}

		raw, err := client.Put(ctx, "/v1/config", payload)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Set config failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatConfig(raw)), nil
	})
}

func registerLogs(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("activity_logs",
		gomcp.WithDescription("Get the most recent activity log events with their severity (info, wait, delay, success, warn, error)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max events to return (default: 50, max: 500)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", 50)
		raw, err := client.Get(ctx, fmt.Sprintf("/v1/logs?limit=%d", limit))
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Logs failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatLogs(raw)), nil
	})
}

func registerClearLogs(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("activity_clear_logs",
		gomcp.WithDescription("Clear the in-memory activity log. This is a MUTATING operation."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		if _, err := client.Delete(ctx, "/v1/logs"); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Clear logs failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(section("Logs Cleared")), nil
	})
}

func registerWallets(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("activity_wallets",
		gomcp.WithDescription("Refresh and list every loaded account with its native and HLS token balances."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/v1/wallets")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Wallets failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatWallets(raw)), nil
	})
}

func registerClaimFaucet(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("activity_claim_faucet",
		gomcp.WithDescription("Claim testnet faucet funds for every loaded account, one claim every 2 seconds. This is a MUTATING operation."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Post(ctx, "/v1/faucet/claim", nil)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Faucet claim failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatFaucet(raw)), nil
	})
}

func registerHistory(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("activity_history",
		gomcp.WithDescription("List past cycles with bridge and stake counts (paginated, newest first)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max results to return (default: 10, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Results offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		offset := req.GetInt("offset", 0)
		path := fmt.Sprintf("/v1/history?limit=%d&offset=%d", limit, offset)

		raw, err := client.Get(ctx, path)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("History failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHistory(raw)), nil
	})
}

func registerCycleOperations(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("activity_cycle_operations",
		gomcp.WithDescription("List the bridge and stake operations of one cycle (paginated)."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Cycle ID"),
		),
		gomcp.WithNumber("limit",
			gomcp.Description("Max operations to return (default: 50, max: 1000)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		limit := req.GetInt("limit", 50)
		offset := req.GetInt("offset", 0)
		path := fmt.Sprintf("/v1/history/%s/operations?limit=%d&offset=%d", url.PathEscape(id), limit, offset)

		raw, err := client.Get(ctx, path)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Cycle operations failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatOperations(raw)), nil
	})
}
