package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/papercut/internal/session"
)

// PapercutServerDeps holds the dependencies for creating a PapercutServer.
type PapercutServerDeps struct {
	Session *session.Session
	Version string
	Logger  *slog.Logger
}

// PapercutServer exposes one papercut session as MCP tools.
type PapercutServer struct {
	session   *session.Session
	clients   *ClientRegistry
	forwarder *EventForwarder
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewPapercutServer creates a PapercutServer with every control registered as a tool.
func NewPapercutServer(deps PapercutServerDeps) *PapercutServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &PapercutServer{
		session: deps.Session,
		clients: NewClientRegistry(),
		logger:  logger,
	}

	mcpSrv := server.NewMCPServer(
		"papercut",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithInstructions("Papercut drives a paper-cut workflow: papercut.generate turns a prompt into a pattern and its cutting steps, papercut.view and papercut.toggle_mode choose what is shown, papercut.download, papercut.print and papercut.export_steps export it, papercut.cutting starts, pauses or stops the machine, and papercut.status reports everything. Toasts and modals are pushed as notifications/message."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.forwarder = NewEventForwarder(mcpSrv, s.clients, logger)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *PapercutServer) Serve(ctx context.Context) error {
	if s.session != nil {
		events, cancel, err := s.session.Subscribe(ctx, ForwardedEvents...)
		if err != nil {
			return err
		}
		defer cancel()
		go s.forwarder.Run(ctx, events)
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *PapercutServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *PapercutServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: generateTool(), Handler: s.handleGenerate},
		{Tool: uploadTool(), Handler: s.handleUpload},
		{Tool: retryTool(), Handler: s.handleRetry},
		{Tool: viewTool(), Handler: s.handleView},
		{Tool: toggleModeTool(), Handler: s.handleToggleMode},
		{Tool: downloadTool(), Handler: s.handleDownload},
		{Tool: printTool(), Handler: s.handlePrint},
		{Tool: exportStepsTool(), Handler: s.handleExportSteps},
		{Tool: cuttingTool(), Handler: s.handleCutting},
		{Tool: dismissTool(), Handler: s.handleDismiss},
		{Tool: statusTool(), Handler: s.handleStatus},
	}
}

// --- Tool definitions ---

func generateTool() mcp.Tool {
	return mcp.NewTool("papercut.generate",
		mcp.WithDescription("Generate a pattern from a prompt and analyze its cutting steps"),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Description of the paper-cut pattern")),
	)
}

func uploadTool() mcp.Tool {
	return mcp.NewTool("papercut.upload",
		mcp.WithDescription("Upload a JPG, PNG or GIF image (at most 5MB) as the pattern and analyze it"),
		mcp.WithString("path", mcp.Description("Path of a local image file")),
		mcp.WithString("data", mcp.Description("Base64 image content, used when path is empty")),
		mcp.WithString("name", mcp.Description("File name reported for data uploads")),
		mcp.WithString("content_type", mcp.Description("Declared MIME type (default: sniffed from the content)")),
	)
}

func retryTool() mcp.Tool {
	return mcp.NewTool("papercut.retry",
		mcp.WithDescription("Re-run step analysis on the displayed pattern"),
	)
}

func viewTool() mcp.Tool {
	return mcp.NewTool("papercut.view",
		mcp.WithDescription("Switch the displayed surface"),
		mcp.WithString("surface", mcp.Required(),
			mcp.Enum("pattern", "steps"),
			mcp.Description("Surface to show"),
		),
	)
}

func toggleModeTool() mcp.Tool {
	return mcp.NewTool("papercut.toggle_mode",
		mcp.WithDescription("Toggle the step visualization between raster and vector"),
	)
}

func downloadTool() mcp.Tool {
	return mcp.NewTool("papercut.download",
		mcp.WithDescription("Save the visualization of the current render mode"),
	)
}

func printTool() mcp.Tool {
	return mcp.NewTool("papercut.print",
		mcp.WithDescription("Print the visualization of the current render mode"),
	)
}

func exportStepsTool() mcp.Tool {
	return mcp.NewTool("papercut.export_steps",
		mcp.WithDescription("Save the cutting steps as text"),
	)
}

func cuttingTool() mcp.Tool {
	return mcp.NewTool("papercut.cutting",
		mcp.WithDescription("Start, pause or resume, or stop the cutting machine"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("start", "pause", "stop"),
			mcp.Description("Control to press; pause on a paused task resumes it"),
		),
		mcp.WithString("confirm", mcp.Description("Answer to the confirmation dialog: yes or no (default: no)")),
	)
}

func dismissTool() mcp.Tool {
	return mcp.NewTool("papercut.dismiss",
		mcp.WithDescription("Close the topmost error modal"),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("papercut.status",
		mcp.WithDescription("Get the session status: artifacts, view, cutting state, toasts and modals"),
		mcp.WithString("journal_since", mcp.Description("Also return journal events after this sequence number")),
	)
}
