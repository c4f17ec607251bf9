package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/rag-pipeline/internal/config"
	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
	"github.com/kirillkom/rag-pipeline/internal/observability/metrics"
)

const (
	serviceName = "api"

	pipelineRetrievalOnly = "retrieval only"
	pipelineWithReranker  = "retrieval + reranker"

	backpressureWait = 250 * time.Millisecond
	maxRequestBody   = 1 << 20
)

type Router struct {
	cfg        config.Config
	ingestor   ports.DocumentIngestor
	retriever  ports.Retriever
	answers    ports.AnswerService
	scheduler  ports.IngestionScheduler
	ingestions ports.IngestionReader
	metrics    *metrics.HTTPServerMetrics
	validator  *requestValidator
}

type RouterOption func(*Router)

// WithAsyncIngestion enables async=true on /ingest and GET /ingestions/{id}.
func WithAsyncIngestion(scheduler ports.IngestionScheduler, reader ports.IngestionReader) RouterOption {
	return func(rt *Router) {
		rt.scheduler = scheduler
		rt.ingestions = reader
	}
}

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func NewRouter(
	cfg config.Config,
	ingestor ports.DocumentIngestor,
	retriever ports.Retriever,
	answers ports.AnswerService,
	opts ...RouterOption,
) (*Router, error) {
	rt := &Router{
		cfg:       cfg,
		ingestor:  ingestor,
		retriever: retriever,
		answers:   answers,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if cfg.OpenAPIValidation {
		validator, err := newRequestValidator()
		if err != nil {
			return nil, err
		}
		rt.validator = validator
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /ingest", rt.ingest)
	api.HandleFunc("POST /search", rt.search)
	api.HandleFunc("POST /chat", rt.chat)
	api.HandleFunc("GET /ingestions/{ingestion_id}", rt.getIngestion)

	var apiHandler http.Handler = api
	if rt.validator != nil {
		apiHandler = rt.validator.middleware(apiHandler)
	}
	apiHandler = timeoutMiddleware(apiHandler, rt.cfg.RequestTimeout)
	apiHandler = backpressureMiddleware(apiHandler, rt.cfg.APIMaxInFlight, backpressureWait, rt.rejected)
	apiHandler = rateLimitMiddleware(apiHandler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.rejected)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", rt.health)
	mux.HandleFunc("GET /openapi.yaml", rt.openapi)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/", apiHandler)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) rejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openapi(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(OpenAPISpec())
}

type ingestRequest struct {
	FilePath string `json:"file_path"`
	Async    bool   `json:"async"`
}

type ingestResponse struct {
	File    string `json:"file"`
	Chunk   int    `json:"chunk"`
	Records int    `json:"records"`
	Skipped bool   `json:"skipped"`
	Message string `json:"message"`
}

func (rt *Router) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.FilePath) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file_path is required"})
		return
	}

	if req.Async {
		rt.ingestAsync(w, r, req.FilePath)
		return
	}

	result, err := rt.ingestor.IngestAndIndex(r.Context(), req.FilePath)
	if err != nil {
		rt.recordIngest("failed", 0, 0)
		rt.writeError(w, r, "ingest", err)
		return
	}

	message := "Ingestion successful"
	outcome := "completed"
	if result.Skipped {
		message = "Document already ingested, skipped"
		outcome = "skipped"
	}
	rt.recordIngest(outcome, result.Records, result.Upserted)

	writeJSON(w, http.StatusOK, ingestResponse{
		File:    req.FilePath,
		Chunk:   result.Upserted,
		Records: result.Records,
		Skipped: result.Skipped,
		Message: message,
	})
}

func (rt *Router) ingestAsync(w http.ResponseWriter, r *http.Request, filePath string) {
	if rt.scheduler == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "async ingestion is disabled"})
		return
	}

	ingestion, err := rt.scheduler.Schedule(r.Context(), filePath)
	if err != nil {
		rt.recordIngest("failed", 0, 0)
		rt.writeError(w, r, "schedule ingestion", err)
		return
	}
	rt.recordIngest("queued", 0, 0)
	writeJSON(w, http.StatusAccepted, ingestion)
}

func (rt *Router) getIngestion(w http.ResponseWriter, r *http.Request) {
	if rt.ingestions == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "async ingestion is disabled"})
		return
	}

	id := strings.TrimSpace(r.PathValue("ingestion_id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ingestion id is required"})
		return
	}

	ingestion, err := rt.ingestions.GetByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, "get ingestion", err)
		return
	}
	writeJSON(w, http.StatusOK, ingestion)
}

type sourceChunk struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
	Pages     string  `json:"pages"`
	ChunkText string  `json:"chunk_text"`
	Citation  string  `json:"citation"`
}

func toSourceChunks(hits []domain.Hit) []sourceChunk {
	chunks := make([]sourceChunk, 0, len(hits))
	for _, hit := range hits {
		chunks = append(chunks, sourceChunk{
			ID:        hit.ID,
			Score:     hit.Score,
			Source:    hit.Source,
			Pages:     hit.Pages,
			ChunkText: hit.ChunkText,
			Citation:  hit.Citation(),
		})
	}
	return chunks
}

type searchRequest struct {
	Query       string `json:"query"`
	TopK        int    `json:"top_k"`
	TopN        int    `json:"top_n"`
	UseReranker *bool  `json:"use_reranker"`
}

type searchResponse struct {
	Query    string        `json:"query"`
	Chunks   []sourceChunk `json:"chunks"`
	Pipeline string        `json:"pipeline"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	topK := positiveOr(req.TopK, rt.cfg.RAGTopK)
	useReranker := req.UseReranker == nil || *req.UseReranker

	var (
		hits     []domain.Hit
		err      error
		pipeline string
	)
	if useReranker {
		pipeline = pipelineWithReranker
		hits, err = rt.retriever.Rerank(r.Context(), req.Query, topK, positiveOr(req.TopN, rt.cfg.RAGRerankTopN))
	} else {
		pipeline = pipelineRetrievalOnly
		hits, err = rt.retriever.Search(r.Context(), req.Query, topK)
	}
	if err != nil {
		rt.writeError(w, r, "search", err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordPipeline(serviceName, "search", pipelineMode(useReranker), len(hits), time.Since(start))
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:    req.Query,
		Chunks:   toSourceChunks(hits),
		Pipeline: pipeline,
	})
}

type chatRequest struct {
	Question    string `json:"question"`
	UseReranker *bool  `json:"use_reranker"`
	TopK        int    `json:"top_k"`
	TopN        int    `json:"top_n"`
	Debug       bool   `json:"debug"`
}

type chatResponse struct {
	Answer       string         `json:"answer"`
	SourceChunks []sourceChunk  `json:"source_chunks"`
	Retrieved    *[]sourceChunk `json:"retrieved,omitempty"`
	Reranked     *[]sourceChunk `json:"reranked,omitempty"`
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	useReranker := req.UseReranker == nil || *req.UseReranker
	answer, err := rt.answers.Answer(r.Context(), domain.AnswerRequest{
		Question:    req.Question,
		UseReranker: useReranker,
		TopK:        positiveOr(req.TopK, rt.cfg.RAGTopK),
		TopN:        positiveOr(req.TopN, rt.cfg.RAGRerankTopN),
	})
	if err != nil {
		rt.writeError(w, r, "chat", err)
		return
	}

	resp := chatResponse{
		Answer:       answer.Text,
		SourceChunks: toSourceChunks(answer.ContextHits),
	}
	if req.Debug {
		// Stage keys stay present in debug mode even when a stage returned nothing.
		retrieved := toSourceChunks(answer.RetrievedHits)
		resp.Retrieved = &retrieved
		if answer.RerankedHits != nil {
			reranked := toSourceChunks(answer.RerankedHits)
			resp.Reranked = &reranked
		}
	}

	if rt.metrics != nil {
		rt.metrics.RecordPipeline(serviceName, "chat", pipelineMode(useReranker), len(answer.ContextHits), time.Since(start))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) recordIngest(outcome string, records, upserted int) {
	if rt.metrics != nil {
		rt.metrics.RecordIngest(serviceName, outcome, records, upserted)
	}
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_operation_failed",
			"request_id", requestIDFromContext(r.Context()),
			"operation", operation,
			"status", status,
			"error", err.Error(),
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func pipelineMode(useReranker bool) string {
	if useReranker {
		return "rerank"
	}
	return "retrieval"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
