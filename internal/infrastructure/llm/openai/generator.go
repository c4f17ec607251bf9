package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/llm"
	"github.com/kirillkom/rag-pipeline/internal/infrastructure/resilience"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

type ChatModelFactory func(ctx context.Context, cfg Config) (model.BaseChatModel, error)

// Generator answers over an OpenAI-compatible chat completion API.
// The chat model is built on first use so a missing key only fails generation.
type Generator struct {
	cfg      Config
	factory  ChatModelFactory
	executor *resilience.Executor

	mu        sync.Mutex
	chatModel model.BaseChatModel
}

func NewGenerator(cfg Config, executor *resilience.Executor) *Generator {
	return &Generator{
		cfg:      cfg,
		factory:  newChatModel,
		executor: executor,
	}
}

// WithFactory replaces the chat model constructor.
func (g *Generator) WithFactory(factory ChatModelFactory) *Generator {
	g.factory = factory
	return g
}

func (g *Generator) Generate(ctx context.Context, systemPrompt, contextBlock, question string) (string, error) {
	chatModel, err := g.model(ctx)
	if err != nil {
		return "", err
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(llm.UserMessage(contextBlock, question)),
	}

	reply, err := resilience.Call(ctx, g.executor, "openai.generate", func(ctx context.Context) (*schema.Message, error) {
		return chatModel.Generate(ctx, messages)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.WrapExternal("openai generate", err)
	}
	if reply == nil {
		return "", domain.WrapError(domain.ErrExternalService, "openai generate", errors.New("empty completion"))
	}
	return strings.TrimSpace(reply.Content), nil
}

func (g *Generator) model(ctx context.Context) (model.BaseChatModel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.chatModel != nil {
		return g.chatModel, nil
	}
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrMissingCredential, "openai generate", errors.New("OPENAI_API_KEY is not set"))
	}

	chatModel, err := g.factory(ctx, g.cfg)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidConfiguration, "openai generate", fmt.Errorf("create chat model: %w", err))
	}
	g.chatModel = chatModel
	return chatModel, nil
}

func newChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	modelCfg := &openaiModel.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelCfg.MaxTokens = &maxTokens
	}
	temperature := cfg.Temperature
	modelCfg.Temperature = &temperature

	return openaiModel.NewChatModel(ctx, modelCfg)
}
