package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gateway-fm/activitybot/pkg/types"
)

// formatNumber adds comma separators to integers.
func formatNumber(n any) string {
	var s string
	switch v := n.(type) {
	case float64:
		if v == float64(int64(v)) {
			s = fmt.Sprintf("%d", int64(v))
		} else {
			return fmt.Sprintf("%.1f", v)
		}
	case int64:
		s = fmt.Sprintf("%d", v)
	case uint64:
		s = fmt.Sprintf("%d", v)
	case int:
		s = fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%v", n)
	}

	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	start := len(s) % 3
	if start > 0 {
		result.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// kv formats a key-value pair with aligned values (20 char key width).
func kv(key string, value any) string {
	return fmt.Sprintf("%-20s %v", key+":", value)
}

// section returns a markdown section header.
func section(title string) string {
	return "## " + title
}

// joinLines joins non-empty lines with newlines.
func joinLines(lines ...string) string {
	var result []string
	for _, l := range lines {
		if l != "" {
			result = append(result, l)
		}
	}
	return strings.Join(result, "\n")
}

// formatPct formats a float as a percentage string.
func formatPct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// formatMs formats milliseconds with a "ms" suffix.
func formatMs(v float64) string {
	return fmt.Sprintf("%.1fms", v)
}

// shortAddr abbreviates a hex address or hash as 0x1234...abcd.
func shortAddr(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// stateOf extracts the state from a {"status": ...} response.
func stateOf(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "unknown"
	}
	return getStr(m, "status")
}

func formatStatus(raw json.RawMessage) string {
	var st types.StatusSnapshot
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Sprintf("Error parsing status: %v", err)
	}

	address := "-"
	if st.Address != "" {
		address = shortAddr(st.Address)
	}
	next := "-"
	if st.NextCycleAt != nil {
		next = formatTime(*st.NextCycleAt)
	}

	lines := joinLines(
		section("Activity Bot Status"),
		kv("Status", st.StatusText),
		kv("Current Account", address),
		kv("Accounts", formatNumber(st.AccountCount)),
		kv("Bridge Repetitions", st.BridgeReps),
		kv("Stake Repetitions", st.StakeReps),
		kv("In Flight", st.InFlight),
		kv("Next Cycle", next),
	)

	if lat := st.ConfirmLatency; lat != nil && lat.Count > 0 {
		lines += "\n\n" + joinLines(
			section("Confirmation Latency"),
			kv("Samples", formatNumber(lat.Count)),
			kv("Min", formatMs(lat.Min)),
			kv("P50", formatMs(lat.P50)),
			kv("P95", formatMs(lat.P95)),
			kv("Max", formatMs(lat.Max)),
		)
	}

	return lines
}

func formatHealth(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing health: %v", err)
	}

	ready, _ := m["ready"].(bool)
	state := "READY"
	if !ready {
		state = "NOT READY"
	}

	lines := section("Activity Bot Health: " + state)

	if checks, ok := m["checks"].([]any); ok {
		for _, c := range checks {
			if check, ok := c.(map[string]any); ok {
				line := fmt.Sprintf("  %-15s %s (%dms)", getStr(check, "name"), getStr(check, "status"), int64(getNum(check, "latency_ms")))
				if errMsg := getStr(check, "error"); errMsg != "" {
					line += " - " + errMsg
				}
				lines += "\n" + line
			}
		}
	}

	return lines
}

func formatConfig(raw json.RawMessage) string {
	var resp types.ConfigResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Sprintf("Error parsing config: %v", err)
	}
	c := resp.Config

	title := "Activity Config"
	if resp.Changed {
		title += " (saved)"
	}
	return joinLines(
		section(title),
		kv("Bridge Repetitions", c.BridgeRepetitions),
		kv("Bridge Amount", fmt.Sprintf("%g - %g HLS", c.MinHlsBridge, c.MaxHlsBridge)),
		kv("Stake Repetitions", c.StakeRepetitions),
		kv("Stake Amount", fmt.Sprintf("%g - %g HLS", c.MinHlsStake, c.MaxHlsStake)),
	)
}

func formatLogs(raw json.RawMessage) string {
	var resp struct {
		Events []types.LogEvent `json:"events"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Sprintf("Error parsing logs: %v", err)
	}
	if len(resp.Events) == 0 {
		return joinLines(section("Activity Log"), "No log events.")
	}

	var b strings.Builder
	b.WriteString(section("Activity Log"))
	for _, ev := range resp.Events {
		fmt.Fprintf(&b, "\n[%s] %-7s %s", ev.Timestamp.Local().Format("15:04:05"), strings.ToUpper(string(ev.Severity)), ev.Message)
	}
	return b.String()
}

func formatWallets(raw json.RawMessage) string {
	var resp struct {
		Wallets []types.WalletInfo `json:"wallets"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Sprintf("Error parsing wallets: %v", err)
	}
	if len(resp.Wallets) == 0 {
		return joinLines(section("Wallets"), "No accounts loaded.")
	}

	var b strings.Builder
	b.WriteString(section("Wallets"))
	for _, w := range resp.Wallets {
		if w.Error != "" {
			fmt.Fprintf(&b, "\n  %2d. %s  error: %s", w.Index+1, shortAddr(w.Address), w.Error)
			continue
		}
		fmt.Fprintf(&b, "\n  %2d. %s  HLS %s  token %s", w.Index+1, shortAddr(w.Address), w.Native, w.Token)
	}
	return b.String()
}

func formatFaucet(raw json.RawMessage) string {
	var resp struct {
		Status  string               `json:"status"`
		Results []types.FaucetResult `json:"results"`
		Error   string               `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Sprintf("Error parsing faucet results: %v", err)
	}

	ok := 0
	for _, r := range resp.Results {
		if r.Error == "" {
			ok++
		}
	}

	var b strings.Builder
	b.WriteString(joinLines(
		section("Faucet Claims"),
		kv("Claimed", fmt.Sprintf("%d / %d", ok, len(resp.Results))),
	))
	if resp.Error != "" {
		b.WriteString("\n" + kv("Interrupted", resp.Error))
	}
	for _, r := range resp.Results {
		if r.Error != "" {
			fmt.Fprintf(&b, "\n  %s  failed: %s", shortAddr(r.Address), r.Error)
		} else {
			fmt.Fprintf(&b, "\n  %s  tx %s", shortAddr(r.Address), shortAddr(r.TxHash))
		}
	}
	return b.String()
}

func formatHistory(raw json.RawMessage) string {
	var resp types.HistoryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Sprintf("Error parsing history: %v", err)
	}

	lines := joinLines(
		section("Cycle History"),
		kv("Total Cycles", formatNumber(resp.Total)),
		"",
	)
	if len(resp.Runs) == 0 {
		return lines + "\nNo cycles found."
	}

	for _, run := range resp.Runs {
		bridges := run.BridgeOK + run.BridgeSkipped + run.BridgeFailed
		rate := 0.0
		if bridges > 0 {
			rate = 100 * float64(run.BridgeOK) / float64(bridges)
		}
		finished := "-"
		if run.FinishedAt != nil {
			finished = formatTime(*run.FinishedAt)
		}

		lines += fmt.Sprintf("\n### %s\n", run.ID)
		lines += joinLines(
			kv("Result", string(run.Result)),
			kv("Started", formatTime(run.StartedAt)),
			kv("Finished", finished),
			kv("Accounts", run.Accounts),
			kv("Bridges", fmt.Sprintf("%d ok, %d skipped, %d failed (%s)", run.BridgeOK, run.BridgeSkipped, run.BridgeFailed, formatPct(rate))),
			kv("Stakes", fmt.Sprintf("%d ok, %d failed", run.StakeOK, run.StakeFailed)),
			kv("Connect Failures", run.ConnectFailures),
		)
		lines += "\n"
	}

	return lines
}

func formatOperations(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing operations: %v", err)
	}

	lines := joinLines(
		section("Cycle Operations"),
		kv("Total", formatNumber(getNum(m, "total"))),
		"",
	)

	ops, ok := m["operations"].([]any)
	if !ok || len(ops) == 0 {
		return lines + "\nNo operations found."
	}

	for i, o := range ops {
		if i >= 50 {
			lines += fmt.Sprintf("\n... and %d more", len(ops)-50)
			break
		}
		op, ok := o.(map[string]any)
		if !ok {
			continue
		}
		line := fmt.Sprintf("\n  %s #%d  %s  %s HLS -> %s  %s",
			getStr(op, "kind"), int64(getNum(op, "repetition")),
			shortAddr(getStr(op, "account")), getStr(op, "amount"), getStr(op, "target"),
			getStr(op, "status"))
		if hash := getStr(op, "txHash"); hash != "" {
			line += "  tx " + shortAddr(hash)
		}
		if reason := getStr(op, "errorReason"); reason != "" {
			line += "  (" + reason + ")"
		}
		lines += line
	}

	return lines
}

// Helper functions
func getStr(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getNum(m map[string]any, key string) float64 {
	if v, ok := m[key]; ok {
		if n, ok := v.(float64); ok {
			return n
		}
	}
	return 0
}
