package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
)

const previewLen = 260

type commands struct {
	ingestor  ports.DocumentIngestor
	retriever ports.Retriever
	answers   ports.AnswerService
	topK      int
	topN      int
	out       io.Writer
}

// ingest keeps going after a failed file and reports the count at the end.
func (c *commands) ingest(ctx context.Context, paths []string) error {
	fmt.Fprintln(c.out, "=== Ingestion ===")
	failed := 0
	for _, path := range paths {
		fmt.Fprintf(c.out, "\nDocument: %s\n", filepath.Base(path))
		result, err := c.ingestor.IngestAndIndex(ctx, path)
		if err != nil {
			failed++
			fmt.Fprintf(c.out, "ingestion failed for %s: %v\n", filepath.Base(path), err)
			continue
		}
		fmt.Fprintf(c.out, "records=%d | upserted=%d | skipped=%t\n", result.Records, result.Upserted, result.Skipped)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(paths))
	}
	return nil
}

func (c *commands) compare(ctx context.Context, question string, topK, topN int) {
	fmt.Fprintln(c.out, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(c.out, "Question")
	fmt.Fprintln(c.out, question)

	base, err := c.retriever.Search(ctx, question, topK)
	if err != nil {
		fmt.Fprintf(c.out, "retrieval failed: %v\n", err)
		return
	}
	reranked, err := c.retriever.Rerank(ctx, question, topK, topN)
	if err != nil {
		fmt.Fprintf(c.out, "rerank failed: %v\n", err)
		return
	}

	c.printHits("Retrieved chunks", base)
	c.printHits("Reranked chunks", reranked)

	before, after, changed := rerankChangedOrder(base, reranked, topN)
	fmt.Fprintf(c.out, "\nReranker changed order: %t\n", changed)
	if changed {
		fmt.Fprintf(c.out, "Before: %v\n", before)
		fmt.Fprintf(c.out, "After : %v\n", after)
	}

	fmt.Fprintln(c.out, "\nAnswer")
	answer, err := c.answers.Answer(ctx, domain.AnswerRequest{
		Question:    question,
		UseReranker: true,
		TopK:        topK,
		TopN:        topN,
	})
	if err != nil {
		fmt.Fprintf(c.out, "generation failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, answer.Text)
}

func (c *commands) printHits(title string, hits []domain.Hit) {
	fmt.Fprintf(c.out, "\n%s (%d hits)\n", title, len(hits))
	for i, hit := range hits {
		fmt.Fprintf(c.out, "%d. id=%s | score=%.4f | source=%s | pages=%s\n", i+1, hit.ID, hit.Score, hit.Source, hit.Pages)
		text := strings.Join(strings.Fields(hit.ChunkText), " ")
		if text == "" {
			continue
		}
		if runes := []rune(text); len(runes) > previewLen {
			text = string(runes[:previewLen])
		}
		fmt.Fprintf(c.out, "   text: %s\n", text)
	}
}

// rerankChangedOrder compares the first topN base ids with the reranked ids.
func rerankChangedOrder(base, reranked []domain.Hit, topN int) (before, after []string, changed bool) {
	before = hitIDs(base)
	if topN >= 0 && len(before) > topN {
		before = before[:topN]
	}
	after = hitIDs(reranked)
	return before, after, !slices.Equal(before, after)
}

func hitIDs(hits []domain.Hit) []string {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	return ids
}
