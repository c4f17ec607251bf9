package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/rag-pipeline/internal/config"
	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/observability/metrics"
)

type ingestorFake struct {
	result *domain.IngestResult
	err    error
	paths  []string
}

func (f *ingestorFake) Ingest(context.Context, string) ([]domain.Record, error) { return nil, nil }

func (f *ingestorFake) Index(context.Context, []domain.Record) (int, error) { return 0, nil }

func (f *ingestorFake) IngestAndIndex(_ context.Context, path string) (*domain.IngestResult, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type retrieverFake struct {
	hits        []domain.Hit
	err         error
	searchCalls int
	rerankCalls int
	lastTopK    int
	lastTopN    int
}

func (f *retrieverFake) Search(_ context.Context, _ string, topK int) ([]domain.Hit, error) {
	f.searchCalls++
	f.lastTopK = topK
	return f.hits, f.err
}

func (f *retrieverFake) Rerank(_ context.Context, _ string, topK, topN int) ([]domain.Hit, error) {
	f.rerankCalls++
	f.lastTopK = topK
	f.lastTopN = topN
	return f.hits, f.err
}

type answerFake struct {
	answer  *domain.Answer
	err     error
	lastReq domain.AnswerRequest
}

func (f *answerFake) Answer(_ context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

type schedulerFake struct {
	ingestion *domain.Ingestion
	err       error
}

func (f *schedulerFake) Schedule(_ context.Context, path string) (*domain.Ingestion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ingestion, nil
}

type ingestionReaderFake struct {
	ingestion *domain.Ingestion
	err       error
}

func (f *ingestionReaderFake) GetByID(context.Context, string) (*domain.Ingestion, error) {
	return f.ingestion, f.err
}

func testConfig() config.Config {
	return config.Config{
		RAGTopK:           10,
		RAGRerankTopN:     5,
		RequestTimeout:    5 * time.Second,
		OpenAPIValidation: true,
	}
}

func newTestHandler(t *testing.T, cfg config.Config, ingestor *ingestorFake, retriever *retrieverFake, answers *answerFake, opts ...RouterOption) http.Handler {
	t.Helper()
	if ingestor == nil {
		ingestor = &ingestorFake{}
	}
	if retriever == nil {
		retriever = &retrieverFake{}
	}
	if answers == nil {
		answers = &answerFake{answer: &domain.Answer{}}
	}
	router, err := NewRouter(cfg, ingestor, retriever, answers, opts...)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func sampleHits() []domain.Hit {
	return []domain.Hit{
		{ID: "report.pdf::chunk_0", Score: 0.9, ChunkText: "revenue grew", Source: "report.pdf", Pages: "1,2"},
		{ID: "notes.txt::chunk_3", Score: 0.4, ChunkText: "notes", Source: "notes.txt"},
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(t, testConfig(), nil, nil, nil)
	res := doJSON(t, handler, http.MethodGet, "/health", nil)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestOpenAPIEndpointServesEmbeddedSpec(t *testing.T) {
	handler := newTestHandler(t, testConfig(), nil, nil, nil)
	res := doJSON(t, handler, http.MethodGet, "/openapi.yaml", nil)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "/ingestions/{ingestion_id}") {
		t.Fatalf("expected spec body, got %q", res.Body.String())
	}
}

func TestIngestReturnsSummary(t *testing.T) {
	ingestor := &ingestorFake{result: &domain.IngestResult{File: "docs/a.pdf", Source: "a.pdf", Records: 4, Upserted: 4}}
	handler := newTestHandler(t, testConfig(), ingestor, nil, nil)

	res := doJSON(t, handler, http.MethodPost, "/ingest", map[string]any{"file_path": "docs/a.pdf"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp ingestResponse
	decodeBody(t, res, &resp)
	if resp.File != "docs/a.pdf" || resp.Chunk != 4 || resp.Records != 4 || resp.Skipped {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Message != "Ingestion successful" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if len(ingestor.paths) != 1 || ingestor.paths[0] != "docs/a.pdf" {
		t.Fatalf("unexpected ingest calls %v", ingestor.paths)
	}
}

func TestIngestReportsSkippedSource(t *testing.T) {
	ingestor := &ingestorFake{result: &domain.IngestResult{File: "a.txt", Source: "a.txt", Records: 2, Skipped: true}}
	handler := newTestHandler(t, testConfig(), ingestor, nil, nil)

	res := doJSON(t, handler, http.MethodPost, "/ingest", map[string]any{"file_path": "a.txt"})
	var resp ingestResponse
	decodeBody(t, res, &resp)
	if !resp.Skipped || resp.Chunk != 0 {
		t.Fatalf("expected skipped response, got %+v", resp)
	}
}

func TestIngestMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing file", domain.WrapError(domain.ErrFileNotFound, "ingest", errors.New("nope.pdf")), http.StatusNotFound},
		{"unsupported", domain.WrapError(domain.ErrUnsupportedFileType, "ingest", errors.New(".docx")), http.StatusBadRequest},
		{"remote failure", domain.WrapError(domain.ErrExternalService, "upsert", errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestHandler(t, testConfig(), &ingestorFake{err: tt.err}, nil, nil)
			res := doJSON(t, handler, http.MethodPost, "/ingest", map[string]any{"file_path": "x"})
			if res.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, res.Code)
			}
		})
	}
}

func TestIngestRejectsMissingFilePath(t *testing.T) {
	ingestor := &ingestorFake{}
	handler := newTestHandler(t, testConfig(), ingestor, nil, nil)

	res := doJSON(t, handler, http.MethodPost, "/ingest", map[string]any{"async": false})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if len(ingestor.paths) != 0 {
		t.Fatalf("expected no ingest call, got %v", ingestor.paths)
	}
}

func TestIngestRejectsMalformedJSONWithoutValidation(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAPIValidation = false
	handler := newTestHandler(t, cfg, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAsyncIngestQueuesIngestion(t *testing.T) {
	queued := &domain.Ingestion{ID: "ing-1", FilePath: "docs/a.pdf", Source: "a.pdf", Status: domain.IngestionQueued}
	handler := newTestHandler(t, testConfig(), nil, nil, nil,
		WithAsyncIngestion(&schedulerFake{ingestion: queued}, &ingestionReaderFake{}),
	)

	res := doJSON(t, handler, http.MethodPost, "/ingest", map[string]any{"file_path": "docs/a.pdf", "async": true})
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var resp domain.Ingestion
	decodeBody(t, res, &resp)
	if resp.ID != "ing-1" || resp.Status != domain.IngestionQueued {
		t.Fatalf("unexpected ingestion %+v", resp)
	}
}

func TestAsyncIngestDisabledReturns400(t *testing.T) {
	handler := newTestHandler(t, testConfig(), nil, nil, nil)

	res := doJSON(t, handler, http.MethodPost, "/ingest", map[string]any{"file_path": "a.txt", "async": true})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetIngestionReturnsLedgerEntry(t *testing.T) {
	entry := &domain.Ingestion{ID: "ing-2", Status: domain.IngestionCompleted, Records: 3, Upserted: 3}
	handler := newTestHandler(t, testConfig(), nil, nil, nil,
		WithAsyncIngestion(&schedulerFake{}, &ingestionReaderFake{ingestion: entry}),
	)

	res := doJSON(t, handler, http.MethodGet, "/ingestions/ing-2", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp domain.Ingestion
	decodeBody(t, res, &resp)
	if resp.ID != "ing-2" || resp.Upserted != 3 {
		t.Fatalf("unexpected ingestion %+v", resp)
	}
}

func TestGetIngestionReturns404ForUnknownID(t *testing.T) {
	handler := newTestHandler(t, testConfig(), nil, nil, nil,
		WithAsyncIngestion(&schedulerFake{}, &ingestionReaderFake{
			err: domain.WrapError(domain.ErrNotFound, "get ingestion", errors.New("id=missing")),
		}),
	)

	res := doJSON(t, handler, http.MethodGet, "/ingestions/missing", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestSearchUsesRerankerByDefault(t *testing.T) {
	retriever := &retrieverFake{hits: sampleHits()}
	handler := newTestHandler(t, testConfig(), nil, retriever, nil)

	res := doJSON(t, handler, http.MethodPost, "/search", map[string]any{"query": "revenue"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp searchResponse
	decodeBody(t, res, &resp)
	if resp.Pipeline != pipelineWithReranker {
		t.Fatalf("unexpected pipeline %q", resp.Pipeline)
	}
	if retriever.rerankCalls != 1 || retriever.searchCalls != 0 {
		t.Fatalf("expected one rerank call, got search=%d rerank=%d", retriever.searchCalls, retriever.rerankCalls)
	}
	if retriever.lastTopK != 10 || retriever.lastTopN != 5 {
		t.Fatalf("expected configured defaults, got k=%d n=%d", retriever.lastTopK, retriever.lastTopN)
	}
	if len(resp.Chunks) != 2 || resp.Chunks[0].Citation != "report.pdf, p.1,2" {
		t.Fatalf("unexpected chunks %+v", resp.Chunks)
	}
}

func TestSearchRetrievalOnly(t *testing.T) {
	retriever := &retrieverFake{hits: sampleHits()}
	handler := newTestHandler(t, testConfig(), nil, retriever, nil)

	res := doJSON(t, handler, http.MethodPost, "/search", map[string]any{"query": "revenue", "use_reranker": false, "top_k": 3})
	var resp searchResponse
	decodeBody(t, res, &resp)
	if resp.Pipeline != pipelineRetrievalOnly {
		t.Fatalf("unexpected pipeline %q", resp.Pipeline)
	}
	if retriever.searchCalls != 1 || retriever.lastTopK != 3 {
		t.Fatalf("expected search with k=3, got calls=%d k=%d", retriever.searchCalls, retriever.lastTopK)
	}
}

func TestSearchRejectsInvalidTopKByContract(t *testing.T) {
	retriever := &retrieverFake{}
	handler := newTestHandler(t, testConfig(), nil, retriever, nil)

	res := doJSON(t, handler, http.MethodPost, "/search", map[string]any{"query": "q", "top_k": "ten"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if retriever.searchCalls+retriever.rerankCalls != 0 {
		t.Fatalf("expected no retrieval on invalid request")
	}
}

func TestSearchMapsIndexNotReadyTo503(t *testing.T) {
	retriever := &retrieverFake{err: domain.WrapError(domain.ErrIndexNotReady, "search", errors.New("initializing"))}
	handler := newTestHandler(t, testConfig(), nil, retriever, nil)

	res := doJSON(t, handler, http.MethodPost, "/search", map[string]any{"query": "q"})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestChatReturnsSourceChunksWithoutDebug(t *testing.T) {
	hits := sampleHits()
	answers := &answerFake{answer: &domain.Answer{
		Text:          "Revenue grew [1].",
		ContextHits:   hits[:1],
		RetrievedHits: hits,
		RerankedHits:  hits[:1],
	}}
	handler := newTestHandler(t, testConfig(), nil, nil, answers)

	res := doJSON(t, handler, http.MethodPost, "/chat", map[string]any{"question": "How did revenue change?"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp map[string]any
	decodeBody(t, res, &resp)
	if resp["answer"] != "Revenue grew [1]." {
		t.Fatalf("unexpected answer %v", resp["answer"])
	}
	if _, ok := resp["retrieved"]; ok {
		t.Fatalf("expected no retrieved hits without debug")
	}
	if chunks, _ := resp["source_chunks"].([]any); len(chunks) != 1 {
		t.Fatalf("expected one source chunk, got %v", resp["source_chunks"])
	}
	if !answers.lastReq.UseReranker || answers.lastReq.TopK != 10 || answers.lastReq.TopN != 5 {
		t.Fatalf("unexpected answer request %+v", answers.lastReq)
	}
}

func TestChatDebugIncludesPipelineStages(t *testing.T) {
	hits := sampleHits()
	answers := &answerFake{answer: &domain.Answer{
		Text:          "ok",
		ContextHits:   hits,
		RetrievedHits: hits,
	}}
	handler := newTestHandler(t, testConfig(), nil, nil, answers)

	res := doJSON(t, handler, http.MethodPost, "/chat", map[string]any{
		"question": "q", "use_reranker": false, "debug": true, "top_k": 2,
	})
	var resp chatResponse
	decodeBody(t, res, &resp)
	if resp.Retrieved == nil || len(*resp.Retrieved) != 2 {
		t.Fatalf("expected retrieved hits in debug mode, got %+v", resp)
	}
	if resp.Reranked != nil {
		t.Fatalf("expected no reranked hits when reranker is off")
	}
	if answers.lastReq.UseReranker || answers.lastReq.TopK != 2 {
		t.Fatalf("unexpected answer request %+v", answers.lastReq)
	}
}

func TestChatDebugKeepsEmptyStagesInBody(t *testing.T) {
	answers := &answerFake{answer: &domain.Answer{
		Text:          "I don't know.",
		ContextHits:   []domain.Hit{},
		RetrievedHits: []domain.Hit{},
		RerankedHits:  []domain.Hit{},
	}}
	handler := newTestHandler(t, testConfig(), nil, nil, answers)

	res := doJSON(t, handler, http.MethodPost, "/chat", map[string]any{"question": "q", "debug": true})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp map[string]any
	decodeBody(t, res, &resp)
	for _, key := range []string{"retrieved", "reranked", "source_chunks"} {
		value, ok := resp[key]
		if !ok {
			t.Fatalf("expected %q key in debug response, got %v", key, resp)
		}
		list, isList := value.([]any)
		if !isList || len(list) != 0 {
			t.Fatalf("expected %q to be an empty list, got %#v", key, value)
		}
	}
}

func TestChatMapsMissingCredentialTo400(t *testing.T) {
	answers := &answerFake{err: domain.WrapError(domain.ErrMissingCredential, "generate", errors.New("OPENAI_API_KEY"))}
	handler := newTestHandler(t, testConfig(), nil, nil, answers)

	res := doJSON(t, handler, http.MethodPost, "/chat", map[string]any{"question": "q"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestChatRequiresQuestionByContract(t *testing.T) {
	answers := &answerFake{answer: &domain.Answer{}}
	handler := newTestHandler(t, testConfig(), nil, nil, answers)

	res := doJSON(t, handler, http.MethodPost, "/chat", map[string]any{"debug": true})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestMetricsEndpointExposesPipelineMetrics(t *testing.T) {
	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	retriever := &retrieverFake{hits: sampleHits()}
	handler := newTestHandler(t, testConfig(), nil, retriever, nil, WithMetrics(httpMetrics))

	doJSON(t, handler, http.MethodPost, "/search", map[string]any{"query": "revenue"})
	res := doJSON(t, handler, http.MethodGet, "/metrics", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "rag_pipeline_requests_total") {
		t.Fatalf("expected pipeline metrics in output")
	}
}
