package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/rag-pipeline/internal/bootstrap"
	"github.com/kirillkom/rag-pipeline/internal/config"
	"github.com/kirillkom/rag-pipeline/internal/observability/logging"
)

const usage = `usage:
  ragctl ingest FILE...
  ragctl compare [-top-k N] [-top-n N] QUESTION...`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stderr, "ragctl", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.AsyncIngest = false
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer app.Close()

	cli := &commands{
		ingestor:  app.IngestUC,
		retriever: app.RetrievalUC,
		answers:   app.AnswerUC,
		topK:      cfg.RAGTopK,
		topN:      cfg.RAGRerankTopN,
		out:       os.Stdout,
	}
	if err := cli.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

var errUsage = errors.New(usage)

func (c *commands) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "ingest":
		if len(args) < 2 {
			return errUsage
		}
		return c.ingest(ctx, args[1:])
	case "compare":
		fs := flag.NewFlagSet("compare", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		topK := fs.Int("top-k", c.topK, "candidates to retrieve")
		topN := fs.Int("top-n", c.topN, "hits kept after reranking")
		if err := fs.Parse(args[1:]); err != nil {
			return fmt.Errorf("%w\n%s", err, usage)
		}
		if fs.NArg() == 0 {
			return errUsage
		}
		for _, question := range fs.Args() {
			c.compare(ctx, question, *topK, *topN)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}
