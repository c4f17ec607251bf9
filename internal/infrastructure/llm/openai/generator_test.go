package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
)

type chatModelFake struct {
	reply    *schema.Message
	err      error
	messages []*schema.Message
}

func (f *chatModelFake) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.messages = input
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *chatModelFake) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestGenerateSendsSystemAndUserMessages(t *testing.T) {
	fake := &chatModelFake{reply: schema.AssistantMessage("  Alpha [1].\n", nil)}
	gen := NewGenerator(Config{APIKey: "sk-test", Model: "gpt-4o-mini"}, nil).
		WithFactory(func(context.Context, Config) (model.BaseChatModel, error) { return fake, nil })

	answer, err := gen.Generate(context.Background(), "system rules", "[1] (source: a.pdf, p.1)\n alpha", "What is alpha?")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "Alpha [1]." {
		t.Fatalf("unexpected answer %q", answer)
	}
	if len(fake.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(fake.messages))
	}
	if fake.messages[0].Role != schema.System || fake.messages[0].Content != "system rules" {
		t.Fatalf("unexpected system message %+v", fake.messages[0])
	}
	wantUser := "Context:\n[1] (source: a.pdf, p.1)\n alpha\n\n--\nQuestion: What is alpha?"
	if fake.messages[1].Role != schema.User || fake.messages[1].Content != wantUser {
		t.Fatalf("unexpected user message %+v", fake.messages[1])
	}
}

func TestGenerateWithoutKeyIsMissingCredential(t *testing.T) {
	factoryCalls := 0
	gen := NewGenerator(Config{Model: "gpt-4o-mini"}, nil).
		WithFactory(func(context.Context, Config) (model.BaseChatModel, error) {
			factoryCalls++
			return &chatModelFake{}, nil
		})

	_, err := gen.Generate(context.Background(), "s", "c", "q")
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
	if factoryCalls != 0 {
		t.Fatalf("chat model must not be built without a key")
	}
}

func TestGenerateWrapsUpstreamFailure(t *testing.T) {
	fake := &chatModelFake{err: errors.New("connection reset")}
	gen := NewGenerator(Config{APIKey: "sk-test"}, nil).
		WithFactory(func(context.Context, Config) (model.BaseChatModel, error) { return fake, nil })

	_, err := gen.Generate(context.Background(), "s", "c", "q")
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}

func TestGenerateBuildsModelOnce(t *testing.T) {
	factoryCalls := 0
	gen := NewGenerator(Config{APIKey: "sk-test"}, nil).
		WithFactory(func(context.Context, Config) (model.BaseChatModel, error) {
			factoryCalls++
			return &chatModelFake{reply: schema.AssistantMessage("ok", nil)}, nil
		})

	for i := 0; i < 3; i++ {
		if _, err := gen.Generate(context.Background(), "s", "c", "q"); err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
	}
	if factoryCalls != 1 {
		t.Fatalf("expected single factory call, got %d", factoryCalls)
	}
}
