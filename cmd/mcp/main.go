package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/rag-pipeline/internal/adapters/mcp"
	"github.com/kirillkom/rag-pipeline/internal/bootstrap"
	"github.com/kirillkom/rag-pipeline/internal/config"
	"github.com/kirillkom/rag-pipeline/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	// stdout carries the MCP protocol.
	slog.SetDefault(logging.New(os.Stderr, "mcp", cfg.LogLevel))

	cfg.AsyncIngest = false
	app, err := bootstrap.New(context.Background(), cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools := mcpadapter.NewTools(app.IngestUC, app.RetrievalUC, app.AnswerUC, cfg.RAGTopK, cfg.RAGRerankTopN)
	if err := server.ServeStdio(tools.NewServer()); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
