package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/NaJiKuN/AIPoweredProBot/internal/ai"
	"github.com/NaJiKuN/AIPoweredProBot/internal/ledger"
	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
)

var (
	ErrUnknownModel     = errors.New("unknown model")
	ErrModelUnavailable = errors.New("model temporarily unavailable")
)

type Generator interface {
	Generate(ctx context.Context, model models.ModelInfo, req ai.Request) (*ai.Response, error)
}

type Entitlements interface {
	TryConsume(ctx context.Context, userID int64, modelName string, requestType models.RequestType, cost int) (*ledger.Receipt, error)
	Refund(ctx context.Context, receipt *ledger.Receipt) error
}

type KeyResolver interface {
	ActiveSecret(ctx context.Context, serviceName string) (string, error)
}

// GenerationService runs a user request end to end: quota consumption, the
// provider call, and the refund when the provider fails after the debit.
type GenerationService struct {
	log     *slog.Logger
	entitle Entitlements
	keys    KeyResolver
	ai      Generator
}

type GenerationRequest struct {
	Model          string
	Prompt         string
	RequestType    models.RequestType
	AttachmentURLs []string
}

type GenerationResult struct {
	Text     string
	MediaURL string
	Bucket   ledger.Bucket
	Cost     int
}

func NewGenerationService(log *slog.Logger, entitle Entitlements, keys KeyResolver, generator Generator) *GenerationService {
	return &GenerationService{
		log:     log,
		entitle: entitle,
		keys:    keys,
		ai:      generator,
	}
}

// Generate charges the user and runs the provider call. Nothing is charged
// for an unknown model or one whose provider key is missing or disabled. A
// provider failure after a successful debit refunds the source bucket.
func (s *GenerationService) Generate(ctx context.Context, userID int64, req GenerationRequest) (*GenerationResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	if req.RequestType == "" {
		req.RequestType = models.RequestTypeText
	}

	model, ok := models.LookupModel(req.Model)
	if !ok {
		return nil, ErrUnknownModel
	}

	secret, err := s.keys.ActiveSecret(ctx, model.Service)
	if err != nil {
		return nil, fmt.Errorf("resolve api key: %w", err)
	}
	if secret == "" {
		return nil, ErrModelUnavailable
	}

	cost := models.CostFor(model, req.RequestType)
	receipt, err := s.entitle.TryConsume(ctx, userID, model.Name, req.RequestType, cost)
	if err != nil {
		return nil, err
	}

	resp, err := s.ai.Generate(ctx, model, ai.Request{
		Prompt:         req.Prompt,
		AttachmentURLs: req.AttachmentURLs,
	})
	if err != nil {
		s.log.Warn("provider call failed, refunding", "user", userID, "model", model.Name, "err", err)
		if rerr := s.entitle.Refund(ctx, receipt); rerr != nil {
			s.log.Error("refund failed", "user", userID, "model", model.Name, "err", rerr)
		}
		return nil, fmt.Errorf("generate: %w", err)
	}

	return &GenerationResult{
		Text:     resp.Text,
		MediaURL: resp.MediaURL,
		Bucket:   receipt.Bucket,
		Cost:     receipt.Cost,
	}, nil
}
