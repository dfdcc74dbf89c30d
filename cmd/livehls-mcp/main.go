package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/livehls/models"
)

func main() {
	apiURL := os.Getenv("LIVEHLS_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("LIVEHLS_API_KEY")

	s := server.NewMCPServer(
		"livehls",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	resolveTool := mcp.NewTool("resolve_live_stream",
		mcp.WithDescription("Resolve a channel handle to the HLS manifest URL of its current live broadcast. Reports when the channel is offline or the broadcast has no HLS manifest."),
		mcp.WithString("handle",
			mcp.Required(),
			mcp.Description("Channel handle, with or without the leading '@' (e.g. '@nasa')"),
		),
	)
	s.AddTool(resolveTool, handleResolve(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleResolve(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		handle, err := request.RequireString("handle")
		if err != nil || strings.TrimSpace(handle) == "" {
			return mcp.NewToolResultError("handle is required"), nil
		}

		resp, err := apiResolve(ctx, client, apiURL, apiKey, handle)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(formatFailure(resp)), nil
		}
		return mcp.NewToolResultText(formatLive(resp)), nil
	}
}

// apiResolve calls GET /api/v1/resolve in JSON mode.
func apiResolve(ctx context.Context, client *http.Client, apiURL, apiKey, handle string) (*models.ResolveResponse, error) {
	q := url.Values{}
	q.Set("id", handle)
	q.Set("format", "json")
	endpoint := strings.TrimRight(apiURL, "/") + "/api/v1/resolve?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out models.ResolveResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return &out, nil
}

func formatLive(r *models.ResolveResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Channel @%s is live.\n\n", r.Handle)
	fmt.Fprintf(&b, "Manifest: %s\n", r.ManifestURL)
	if r.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", r.Title)
	}
	if r.VideoURL != "" {
		fmt.Fprintf(&b, "Watch: %s\n", r.VideoURL)
	}
	if r.Tier != "" {
		fmt.Fprintf(&b, "Resolved via: %s", r.Tier)
		if r.CacheStatus == "hit" {
			b.WriteString(" (cached)")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatFailure(r *models.ResolveResponse) string {
	msg := r.Status
	if r.Error != nil {
		msg = r.Error.Message
		if r.Error.Details != "" {
			msg += ": " + r.Error.Details
		}
		return fmt.Sprintf("[%s] %s", r.Error.Code, msg)
	}
	return msg
}
