package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ownaday/daybook/internal/config"
	"github.com/ownaday/daybook/internal/payment/adapters"
	paymentdomain "github.com/ownaday/daybook/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc paymentdomain.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
}

// Service turns a raw provider callback into a processed checkout event:
// signature verification, payload normalization, then the ledger-side
// idempotent apply.
type Service struct {
	log           *zap.Logger
	paymentSvc    paymentdomain.Service
	adapters      *adapters.Registry
	webhookSecret string
}

func NewService(p Params) *Service {
	return &Service{
		log:           p.Log.Named("payment.webhook"),
		paymentSvc:    p.PaymentSvc,
		adapters:      p.Adapters,
		webhookSecret: strings.TrimSpace(p.Cfg.PaymentWebhookSecret),
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrProviderNotFound
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
		Config: map[string]any{"webhook_secret": s.webhookSecret},
	})
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	return s.paymentSvc.ProcessEvent(ctx, event)
}
