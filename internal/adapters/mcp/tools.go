package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
)

const (
	serverName    = "rag-pipeline"
	serverVersion = "1.0.0"
)

// Tools exposes search, answer and ingest as MCP tools.
type Tools struct {
	ingestor  ports.DocumentIngestor
	retriever ports.Retriever
	answers   ports.AnswerService
	topK      int
	topN      int
}

func NewTools(ingestor ports.DocumentIngestor, retriever ports.Retriever, answers ports.AnswerService, topK, topN int) *Tools {
	return &Tools{
		ingestor:  ingestor,
		retriever: retriever,
		answers:   answers,
		topK:      topK,
		topN:      topN,
	}
}

func (t *Tools) NewServer() *server.MCPServer {
	srv := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Retrieve document chunks relevant to a query, optionally reranked."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
		mcp.WithNumber("top_k", mcp.Description("Candidates to retrieve")),
		mcp.WithNumber("top_n", mcp.Description("Hits kept after reranking")),
		mcp.WithBoolean("use_reranker", mcp.Description("Rerank candidates (default true)")),
	), t.search)

	srv.AddTool(mcp.NewTool("answer",
		mcp.WithDescription("Answer a question from ingested documents with numbered citations."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question to answer")),
		mcp.WithNumber("top_k", mcp.Description("Candidates to retrieve")),
		mcp.WithNumber("top_n", mcp.Description("Hits kept after reranking")),
		mcp.WithBoolean("use_reranker", mcp.Description("Rerank candidates (default true)")),
	), t.answer)

	srv.AddTool(mcp.NewTool("ingest",
		mcp.WithDescription("Extract, chunk and index a local .txt, .md, .pdf or .xlsx file."),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Path readable by the server")),
	), t.ingest)

	return srv
}

type toolHit struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
	Pages     string  `json:"pages"`
	ChunkText string  `json:"chunk_text"`
	Citation  string  `json:"citation"`
}

func toToolHits(hits []domain.Hit) []toolHit {
	out := make([]toolHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, toolHit{
			ID:        h.ID,
			Score:     h.Score,
			Source:    h.Source,
			Pages:     h.Pages,
			ChunkText: h.ChunkText,
			Citation:  h.Citation(),
		})
	}
	return out
}

func (t *Tools) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topK := positiveOr(req.GetInt("top_k", 0), t.topK)

	var hits []domain.Hit
	if req.GetBool("use_reranker", true) {
		hits, err = t.retriever.Rerank(ctx, query, topK, positiveOr(req.GetInt("top_n", 0), t.topN))
	} else {
		hits, err = t.retriever.Search(ctx, query, topK)
	}
	if err != nil {
		return toolError("search", err), nil
	}
	return jsonResult(map[string]any{"query": query, "chunks": toToolHits(hits)})
}

func (t *Tools) answer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	answer, err := t.answers.Answer(ctx, domain.AnswerRequest{
		Question:    question,
		UseReranker: req.GetBool("use_reranker", true),
		TopK:        positiveOr(req.GetInt("top_k", 0), t.topK),
		TopN:        positiveOr(req.GetInt("top_n", 0), t.topN),
	})
	if err != nil {
		return toolError("answer", err), nil
	}
	return jsonResult(map[string]any{"answer": answer.Text, "source_chunks": toToolHits(answer.ContextHits)})
}

func (t *Tools) ingest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, err := req.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.ingestor.IngestAndIndex(ctx, filePath)
	if err != nil {
		return toolError("ingest", err), nil
	}
	return jsonResult(result)
}

func toolError(tool string, err error) *mcp.CallToolResult {
	slog.Warn("mcp_tool_failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", tool, err))
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
