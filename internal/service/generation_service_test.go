package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaJiKuN/AIPoweredProBot/internal/ai"
	"github.com/NaJiKuN/AIPoweredProBot/internal/ledger"
	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
)

type fakeEntitlements struct {
	consumeErr error
	consumed   []int
	refunded   int
}

func (f *fakeEntitlements) TryConsume(_ context.Context, userID int64, modelName string, requestType models.RequestType, cost int) (*ledger.Receipt, error) {
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	f.consumed = append(f.consumed, cost)
	return &ledger.Receipt{UserID: userID, Bucket: ledger.BucketFreeTrial, ModelName: modelName, RequestType: requestType, Cost: cost}, nil
}

func (f *fakeEntitlements) Refund(_ context.Context, _ *ledger.Receipt) error {
	f.refunded++
	return nil
}

type fakeKeys struct {
	secrets map[string]string
}

func (f *fakeKeys) ActiveSecret(_ context.Context, serviceName string) (string, error) {
	return f.secrets[serviceName], nil
}

type fakeGenerator struct {
	err   error
	resp  ai.Response
	calls int
}

func (f *fakeGenerator) Generate(_ context.Context, _ models.ModelInfo, _ ai.Request) (*ai.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	resp := f.resp
	return &resp, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerateSuccess(t *testing.T) {
	entitle := &fakeEntitlements{}
	gen := &fakeGenerator{resp: ai.Response{Text: "hello"}}
	svc := NewGenerationService(testLogger(), entitle, &fakeKeys{secrets: map[string]string{"OpenAI": "sk-1"}}, gen)

	result, err := svc.Generate(context.Background(), 1, GenerationRequest{Model: "GPT-4o mini", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text)
	assert.Equal(t, ledger.BucketFreeTrial, result.Bucket)
	assert.Equal(t, []int{1}, entitle.consumed)
	assert.Equal(t, 0, entitle.refunded)
}

func TestGenerateUnknownModelChargesNothing(t *testing.T) {
	entitle := &fakeEntitlements{}
	gen := &fakeGenerator{}
	svc := NewGenerationService(testLogger(), entitle, &fakeKeys{}, gen)

	_, err := svc.Generate(context.Background(), 1, GenerationRequest{Model: "GPT-9000", Prompt: "hi"})
	require.ErrorIs(t, err, ErrUnknownModel)
	assert.Empty(t, entitle.consumed)
	assert.Equal(t, 0, gen.calls)
}

func TestGenerateMissingKeyChargesNothing(t *testing.T) {
	entitle := &fakeEntitlements{}
	gen := &fakeGenerator{}
	svc := NewGenerationService(testLogger(), entitle, &fakeKeys{secrets: map[string]string{}}, gen)

	_, err := svc.Generate(context.Background(), 1, GenerationRequest{Model: "Claude 4 Sonnet", Prompt: "hi"})
	require.ErrorIs(t, err, ErrModelUnavailable)
	assert.Empty(t, entitle.consumed)
	assert.Equal(t, 0, gen.calls)
}

func TestGenerateEmptyPrompt(t *testing.T) {
	svc := NewGenerationService(testLogger(), &fakeEntitlements{}, &fakeKeys{}, &fakeGenerator{})

	_, err := svc.Generate(context.Background(), 1, GenerationRequest{Model: "GPT-4o mini", Prompt: "   "})
	require.Error(t, err)
}

func TestGenerateQuotaErrorPassesThrough(t *testing.T) {
	entitle := &fakeEntitlements{consumeErr: ledger.ErrInsufficientQuota}
	gen := &fakeGenerator{}
	svc := NewGenerationService(testLogger(), entitle, &fakeKeys{secrets: map[string]string{"OpenAI": "sk-1"}}, gen)

	_, err := svc.Generate(context.Background(), 1, GenerationRequest{Model: "GPT-4o mini", Prompt: "hi"})
	require.ErrorIs(t, err, ledger.ErrInsufficientQuota)
	assert.Equal(t, 0, gen.calls)
}

func TestGenerateProviderFailureRefunds(t *testing.T) {
	entitle := &fakeEntitlements{}
	gen := &fakeGenerator{err: errors.New("upstream down")}
	svc := NewGenerationService(testLogger(), entitle, &fakeKeys{secrets: map[string]string{"OpenAI": "sk-1"}}, gen)

	_, err := svc.Generate(context.Background(), 1, GenerationRequest{Model: "GPT-4o mini", Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, []int{1}, entitle.consumed)
	assert.Equal(t, 1, entitle.refunded)
}

func TestGenerateDocumentCostsDouble(t *testing.T) {
	entitle := &fakeEntitlements{}
	gen := &fakeGenerator{resp: ai.Response{Text: "summary"}}
	svc := NewGenerationService(testLogger(), entitle, &fakeKeys{secrets: map[string]string{"Claude": "sk-2"}}, gen)

	_, err := svc.Generate(context.Background(), 1, GenerationRequest{
		Model:       "Claude 4 Sonnet",
		Prompt:      "summarize",
		RequestType: models.RequestTypeDocument,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, entitle.consumed)
}
