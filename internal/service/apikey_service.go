package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
	"github.com/NaJiKuN/AIPoweredProBot/internal/repository"
)

// APIKeyService manages provider credentials for the admin surface and
// resolves active secrets for outgoing generation calls.
type APIKeyService struct {
	log  *slog.Logger
	keys *repository.APIKeyRepository
}

func NewAPIKeyService(log *slog.Logger, keys *repository.APIKeyRepository) *APIKeyService {
	return &APIKeyService{log: log, keys: keys}
}

func (s *APIKeyService) Set(ctx context.Context, serviceName, secret string, addedBy int64) error {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("secret cannot be empty")
	}
	rec := models.APIKeyRecord{
		ServiceName: serviceName,
		SecretValue: secret,
		IsActive:    true,
		AddedBy:     addedBy,
	}
	if err := s.keys.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	s.log.Info("api key updated", "service", serviceName, "by", addedBy)
	return nil
}

func (s *APIKeyService) SetActive(ctx context.Context, serviceName string, active bool) (bool, error) {
	return s.keys.SetActive(ctx, serviceName, active)
}

func (s *APIKeyService) Delete(ctx context.Context, serviceName string) (bool, error) {
	return s.keys.Delete(ctx, serviceName)
}

// List returns key metadata without secret values.
func (s *APIKeyService) List(ctx context.Context) ([]models.APIKeyRecord, error) {
	return s.keys.List(ctx)
}

// ActiveSecret returns the active secret for a service, or "" when the key is
// missing or disabled.
func (s *APIKeyService) ActiveSecret(ctx context.Context, serviceName string) (string, error) {
	return s.keys.ActiveSecret(ctx, serviceName)
}
