package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
)

const (
	EmptyQuestionAnswer = "Question is empty."
	NoContextAnswer     = "I don't have enough information to answer that."
)

const SystemPrompt = `You are a helpful assistant that answers questions based on the provided context.
Use ONLY the context below to answer. If the answer is not in the context, say "I don't have enough information to answer that."

CITATION RULES:
- Each context chunk is labeled [1], [2], etc. with its source document and page number(s).
- When you use information from a chunk, cite it inline like [1], [2], etc.
- At the end of your answer, add a "References" section listing each cited source with page numbers.
- Format: [n] source_filename, p.X

Example:
Apple's Q4 revenue was $94.9 billion [1], with Services reaching a record $25 billion [2].

References:
[1] Apple_Q24.pdf, p.3
[2] Apple_Q24.pdf, p.5`

type AnswerUseCase struct {
	retriever ports.Retriever
	generator ports.Generator
}

func NewAnswerUseCase(retriever ports.Retriever, generator ports.Generator) *AnswerUseCase {
	return &AnswerUseCase{
		retriever: retriever,
		generator: generator,
	}
}

// Answer runs retrieve, optional rerank, context assembly and generation in that order.
func (uc *AnswerUseCase) Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return &domain.Answer{
			Text:          EmptyQuestionAnswer,
			ContextHits:   []domain.Hit{},
			RetrievedHits: []domain.Hit{},
		}, nil
	}

	retrieved, err := uc.retriever.Search(ctx, question, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	answer := &domain.Answer{
		ContextHits:   retrieved,
		RetrievedHits: retrieved,
	}

	if req.UseReranker {
		reranked, err := uc.retriever.Rerank(ctx, question, req.TopK, req.TopN)
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
		answer.RerankedHits = reranked
		answer.ContextHits = reranked
	}

	if len(answer.ContextHits) == 0 {
		answer.Text = NoContextAnswer
		return answer, nil
	}

	text, err := uc.generator.Generate(ctx, SystemPrompt, BuildContext(answer.ContextHits), question)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	answer.Text = text
	return answer, nil
}
