package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// SignalTransformer implements Transformer by decoding the signal envelope
// carried in the message value.
type SignalTransformer struct {
	logger *slog.Logger
}

// NewTransformer creates a SignalTransformer.
func NewTransformer(logger *slog.Logger) *SignalTransformer {
	return &SignalTransformer{logger: logger}
}

func (t *SignalTransformer) Transform(_ context.Context, raw domain.RawMessage) (domain.SignalEnvelope, error) {
	env, err := domain.ParseSignalMessage(raw)
	if err != nil {
		return domain.SignalEnvelope{}, err
	}
	t.logger.Debug("signal decoded", "kind", env.Kind, "unit_id", env.UnitID(), "date", env.Date())
	return env, nil
}
