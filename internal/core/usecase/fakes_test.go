package usecase

import (
	"context"
	"errors"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
)

type indexFake struct {
	missing      bool
	hasIndexErr  error
	hits         []domain.Hit
	rerankHits   []domain.Hit
	searchErr    error
	upsertErr    error
	exists       bool
	existsErr    error
	hasIndexHits int
	searchReqs   []ports.SearchRequest
	rerankReqs   []ports.RerankRequest
	batches      [][]domain.Record
	existsCalls  []string
}

func (f *indexFake) HasIndex(context.Context) (bool, error) {
	f.hasIndexHits++
	if f.hasIndexErr != nil {
		return false, f.hasIndexErr
	}
	return !f.missing, nil
}

func (f *indexFake) Search(_ context.Context, req ports.SearchRequest) ([]domain.Hit, error) {
	f.searchReqs = append(f.searchReqs, req)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *indexFake) SearchWithRerank(_ context.Context, req ports.RerankRequest) ([]domain.Hit, error) {
	f.rerankReqs = append(f.rerankReqs, req)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.rerankHits, nil
}

func (f *indexFake) Upsert(_ context.Context, records []domain.Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	batch := make([]domain.Record, len(records))
	copy(batch, records)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *indexFake) SourceExists(_ context.Context, source string) (bool, error) {
	f.existsCalls = append(f.existsCalls, source)
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.exists, nil
}

func (f *indexFake) calls() int {
	return f.hasIndexHits + len(f.searchReqs) + len(f.rerankReqs) + len(f.batches) + len(f.existsCalls)
}

type extractorFake struct {
	pages []domain.Page
	err   error
	paths []string
}

func (f *extractorFake) Extensions() []string { return []string{".txt"} }

func (f *extractorFake) ExtractPages(_ context.Context, path string) ([]domain.Page, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

type chunkerFake struct {
	chunks []domain.Chunk
}

func (f *chunkerFake) Chunk([]domain.Page) []domain.Chunk { return f.chunks }

type generatorFake struct {
	answer       string
	err          error
	calls        int
	systemPrompt string
	contextBlock string
	question     string
}

func (f *generatorFake) Generate(_ context.Context, systemPrompt, contextBlock, question string) (string, error) {
	f.calls++
	f.systemPrompt = systemPrompt
	f.contextBlock = contextBlock
	f.question = question
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type statusCall struct {
	status domain.IngestionStatus
	errMsg string
}

type ingestionRepoFake struct {
	ingestion   *domain.Ingestion
	created     *domain.Ingestion
	createErr   error
	getErr      error
	statusErr   error
	saveErr     error
	statusCalls []statusCall
	saved       *domain.IngestResult
}

func (f *ingestionRepoFake) Create(_ context.Context, ingestion *domain.Ingestion) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyIngestion := *ingestion
	f.created = &copyIngestion
	return nil
}

func (f *ingestionRepoFake) GetByID(_ context.Context, id string) (*domain.Ingestion, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.ingestion == nil || f.ingestion.ID != id {
		return nil, domain.WrapError(domain.ErrNotFound, "get ingestion", errors.New("not found"))
	}
	copyIngestion := *f.ingestion
	return &copyIngestion, nil
}

func (f *ingestionRepoFake) UpdateStatus(_ context.Context, _ string, status domain.IngestionStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	return f.statusErr
}

func (f *ingestionRepoFake) SaveResult(_ context.Context, _ string, result domain.IngestResult) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = &result
	return nil
}

type queueFake struct {
	ingestionID string
	err         error
}

func (f *queueFake) PublishIngestionRequested(_ context.Context, ingestionID string) error {
	if f.err != nil {
		return f.err
	}
	f.ingestionID = ingestionID
	return nil
}

func (f *queueFake) SubscribeIngestionRequested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type ingestorFake struct {
	result *domain.IngestResult
	err    error
	paths  []string
}

func (f *ingestorFake) Ingest(context.Context, string) ([]domain.Record, error) {
	return nil, errors.New("not implemented")
}

func (f *ingestorFake) Index(context.Context, []domain.Record) (int, error) {
	return 0, errors.New("not implemented")
}

func (f *ingestorFake) IngestAndIndex(_ context.Context, path string) (*domain.IngestResult, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
