package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/newsr/citydigest/config"
	"github.com/newsr/citydigest/lib"
	"github.com/newsr/citydigest/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srv.ListenAndServe()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service) http.Handler {
	ctrl := &controller{log, svc}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("citydigest", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/users/{user_id}/subscriptions", func(r chi.Router) {
			r.Get("/", ctrl.listSubscriptions)
			r.Post("/", ctrl.subscribe)
			r.Delete("/", ctrl.unsubscribe)
			r.Patch("/", ctrl.updatePreferences)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/digests/send", ctrl.triggerSend)
			r.Post("/digests/test", ctrl.sendTestDigest)
			r.Get("/deliveries", ctrl.recentDeliveries)
			r.Get("/deliveries/stats", ctrl.deliveryStats)
			r.Post("/email", ctrl.sendOpsEmail)
			r.Get("/mailchimp/ping", ctrl.pingProvider)
		})
	})

	return r
}

type controller struct {
	log *zap.Logger
	svc *lib.Service
}

func (ctrl *controller) reject(w http.ResponseWriter, err error) {
	var validation *lib.ValidationError
	var notFound *lib.NotFoundError

	switch {
	case errors.As(err, &validation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		ctrl.log.Sugar().Error("Request failed", "error", err)
		return
	} else {
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

func (ctrl *controller) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	cityCode := r.FormValue("city_code")
	frequency := r.FormValue("frequency")

	sub, err := ctrl.svc.Subscribe(ctx, userID, cityCode, frequency)
	if err != nil {
		ctrl.reject(w, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, SubscriptionView{}.From(*sub))
}

func (ctrl *controller) unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	cityCode := r.URL.Query().Get("city_code")
	frequency := r.URL.Query().Get("frequency")

	if err := ctrl.svc.Unsubscribe(ctx, userID, cityCode, frequency); err != nil {
		ctrl.reject(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"unsubscribed": true})
}

func (ctrl *controller) updatePreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))

	var body PreferencesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ctrl.reject(w, &lib.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	sub, err := ctrl.svc.UpdatePreferences(ctx, userID, body.CityCode, body.Update())
	if err != nil {
		ctrl.reject(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, SubscriptionView{}.From(*sub))
}

func (ctrl *controller) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))

	subs, err := ctrl.svc.ListSubscriptions(ctx, userID)
	if err != nil {
		ctrl.reject(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{
		"subscriptions": FromMany[models.Subscription, SubscriptionView](subs),
	})
}

func (ctrl *controller) triggerSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	frequency := r.FormValue("frequency")
	cityCode := r.FormValue("city_code")

	results, err := ctrl.svc.TriggerSend(ctx, frequency, cityCode)
	if err != nil {
		ctrl.reject(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"results": results})
}

func (ctrl *controller) sendTestDigest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(r.FormValue("user_id"))
	cityCode := r.FormValue("city_code")
	frequency := r.FormValue("frequency")

	campaignID, err := ctrl.svc.SendTestDigest(ctx, userID, cityCode, frequency)
	if err != nil {
		ctrl.reject(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"campaign_id": campaignID})
}

func (ctrl *controller) recentDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := lib.LedgerFilter{
		CityCode:   r.URL.Query().Get("city_code"),
		CampaignID: r.URL.Query().Get("campaign_id"),
		Limit:      int(parseInt(r.URL.Query().Get("limit"))),
	}

	records, err := ctrl.svc.RecentDeliveries(ctx, filter)
	if err != nil {
		ctrl.reject(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{
		"deliveries": FromMany[models.DeliveryRecord, DeliveryRecordView](records),
	})
}

func (ctrl *controller) deliveryStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := ctrl.svc.DeliveryStats(ctx)
	if err != nil {
		ctrl.reject(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"stats": stats})
}

func (ctrl *controller) sendOpsEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recipient := r.FormValue("to")
	subject := r.FormValue("subject")
	body := r.FormValue("body")

	if recipient == "" {
		ctrl.reject(w, &lib.ValidationError{Field: "to", Reason: "recipient is required"})
		return
	}

	id, err := ctrl.svc.SendOpsEmail(ctx, recipient, subject, body)
	if err != nil {
		ctrl.reject(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"message_id": id})
}

func (ctrl *controller) pingProvider(w http.ResponseWriter, r *http.Request) {
	if err := ctrl.svc.PingProvider(r.Context()); err != nil {
		ctrl.reject(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"connected": true})
}

func parseInt(s string) uint {
	u, _ := strconv.ParseUint(s, 10, 64)
	return uint(u)
}
