package main

import (
	"net/http"
	"os"
	"time"

	"github.com/newsr/citydigest/app"
	"github.com/newsr/citydigest/config"
	"github.com/newsr/citydigest/lib"
	"github.com/newsr/citydigest/mailchimp"
	"github.com/newsr/citydigest/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func main() {
	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(senders.NewSenderRegistry),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),
		fx.Provide(mailchimp.NewClient),
		fx.Provide(func(c *mailchimp.Client) mailchimp.API { return c }),
		fx.Provide(lib.NewService),
		fx.Provide(lib.NewScheduler),
		fx.Provide(app.NewAPI),

		fx.Invoke(func(*http.Server) {}),
		fx.Invoke(func(*lib.Scheduler) {}),
	).Run()
}
