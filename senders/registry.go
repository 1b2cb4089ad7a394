package senders

import (
	"context"
	"net/http"

	"github.com/newsr/citydigest/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sender delivers a single transactional email outside the mailing
// list provider. Used for operator checks that must not depend on the
// campaign pipeline.
type Sender interface {
	Send(ctx context.Context, subject, body, recipient string) (string, error)
}

type Registry map[string]Sender

func NewSenderRegistry(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	return map[string]Sender{
		"email": &mailgunSender{base},
	}
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}
