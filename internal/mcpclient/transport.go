package mcpclient

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// transportBuilder is swapped in tests for an in-memory transport.
var transportBuilder = buildTransport

// TransportSpec selects how to reach the MCP server. URL takes precedence
// over Command.
type TransportSpec struct {
	Command string
	Args    []string
	// URL is an http(s) endpoint. The scheme may carry a hint:
	// "http+sse://" for the SSE transport, "http+stream://" (or a plain
	// http URL) for the streamable HTTP transport.
	URL string
}

func (s TransportSpec) String() string {
	if s.URL != "" {
		return s.URL
	}
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}

func buildTransport(spec TransportSpec) (mcpsdk.Transport, error) {
	if spec.URL != "" {
		kind, endpoint, err := parseEndpoint(spec.URL)
		if err != nil {
			return nil, err
		}
		if kind == "sse" {
			return &mcpsdk.SSEClientTransport{Endpoint: endpoint}, nil
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: endpoint}, nil
	}

	if strings.TrimSpace(spec.Command) == "" {
		return nil, fmt.Errorf("no MCP command or URL configured")
	}
	// not bound to a request context: the server outlives any single call
	cmd := exec.Command(spec.Command, spec.Args...)
	return &mcpsdk.CommandTransport{Command: cmd}, nil
}

// parseEndpoint resolves the transport kind ("sse" or "http") and the plain
// http(s) endpoint of raw.
func parseEndpoint(raw string) (kind, endpoint string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("invalid MCP URL: %w", err)
	}

	base, hint, hasHint := strings.Cut(strings.ToLower(u.Scheme), "+")
	if base != "http" && base != "https" {
		return "", "", fmt.Errorf("unsupported MCP URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("MCP URL %q has no host", raw)
	}

	kind = "http"
	if hasHint {
		switch hint {
		case "sse":
			kind = "sse"
		case "stream", "streamable", "http":
		default:
			return "", "", fmt.Errorf("unsupported MCP transport hint %q", hint)
		}
	}
	u.Scheme = base
	return kind, u.String(), nil
}
