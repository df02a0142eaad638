// Package mcpserver exposes kiln's build controls as MCP tools over stdio,
// so an editor agent can trigger builds, inspect status and forget sources
// against the same in-process output memory as the watch loop.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/kiln/internal/asset"
	"github.com/conneroisu/kiln/internal/build"
	"github.com/conneroisu/kiln/internal/config"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/scheduler"
	"github.com/conneroisu/kiln/internal/version"
)

const configURI = "kiln://config"

// CacheClearer empties the persisted transform cache.
type CacheClearer interface {
	Clear(ctx context.Context) (int64, error)
}

// Options configures a Server.
type Options struct {
	Scheduler *scheduler.Scheduler
	Runner    scheduler.Runner
	// Cache is nil when the persisted cache is disabled.
	Cache  CacheClearer
	Config *config.Config
	Logger logging.Logger
}

// Server wraps the MCP server with kiln tools.
type Server struct {
	mcp    *server.MCPServer
	opts   Options
	logger logging.Logger
}

// New creates an MCP server with all tools registered.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	s := &Server{opts: opts, logger: opts.Logger.WithComponent("mcp")}

	s.mcp = server.NewMCPServer(
		"kiln",
		version.Short(),
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("build",
		mcp.WithDescription("Run the asset pipeline. Without a class every class is built in declared order; unchanged files are skipped."),
		mcp.WithString("class", mcp.Description("Optional asset class to build"), mcp.Enum(classNames()...)),
	), s.build)

	s.mcp.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Per-class state, remembered output count and the last run report."),
	), s.status)

	s.mcp.AddTool(mcp.NewTool("forget",
		mcp.WithDescription("Drop a source from output memory and remove its outputs, as if it had been deleted."),
		mcp.WithString("class", mcp.Required(), mcp.Description("Asset class of the source"), mcp.Enum(classNames()...)),
		mcp.WithString("path", mcp.Required(), mcp.Description("Project-relative source path (e.g. src/js/a.js)")),
	), s.forget)

	s.mcp.AddTool(mcp.NewTool("clear_cache",
		mcp.WithDescription("Empty the persisted transform cache."),
	), s.clearCache)

	if opts.Config != nil {
		s.mcp.AddResource(
			mcp.NewResource(configURI, "Effective configuration",
				mcp.WithResourceDescription("The configuration kiln is running with, after defaults and environment."),
				mcp.WithMIMEType("application/yaml"),
			),
			s.readConfig,
		)
	}

	return s
}

// ServeStdio serves the MCP protocol on stdin/stdout until the client
// disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// runSummary is a report with its failures rendered.
type runSummary struct {
	*build.Report
	Failures []string `json:"failures,omitempty"`
}

func summarize(reports ...*build.Report) []runSummary {
	out := make([]runSummary, 0, len(reports))
	for _, r := range reports {
		if r == nil {
			continue
		}
		out = append(out, runSummary{Report: r, Failures: r.FailureMessages()})
	}
	return out
}

func (s *Server) build(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("class", "")
	if name == "" {
		reports, err := s.opts.Scheduler.Build(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(summarize(reports...))
	}

	class, err := asset.ParseClass(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.opts.Scheduler.BuildClass(ctx, class)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summarize(report))
}

func (s *Server) status(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.opts.Scheduler.Status())
}

func (s *Server) forget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("class")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	class, err := asset.ParseClass(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := s.opts.Runner.Forget(ctx, class, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(report.Removed) == 0 && len(report.Written) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("not remembered: %s", path)), nil
	}
	return jsonResult(summarize(report))
}

func (s *Server) clearCache(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.opts.Cache == nil {
		return mcp.NewToolResultError("transform cache is disabled (cache.persist)"), nil
	}
	n, err := s.opts.Cache.Clear(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Info(ctx, "Transform cache cleared", "entries", n)
	return mcp.NewToolResultText(fmt.Sprintf("cleared %d cached transforms", n)), nil
}

func (s *Server) readConfig(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := yaml.Marshal(s.opts.Config)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      configURI,
			MIMEType: "application/yaml",
			Text:     string(out),
		},
	}, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func classNames() []string {
	classes := asset.Classes()
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = string(c)
	}
	return out
}
