package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/feedflow/feedflow/internal/auth"
	"github.com/feedflow/feedflow/internal/chat"
	"github.com/feedflow/feedflow/internal/notify"
	"github.com/feedflow/feedflow/internal/observability"
	"github.com/feedflow/feedflow/internal/orders"
	"github.com/feedflow/feedflow/internal/parties"
	"github.com/feedflow/feedflow/internal/payments"
	"github.com/feedflow/feedflow/internal/rbac"
	"github.com/feedflow/feedflow/internal/realtime"
	"github.com/feedflow/feedflow/internal/shared"
	"github.com/feedflow/feedflow/internal/stock"
	"github.com/feedflow/feedflow/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Authenticator  auth.Middleware
	RBACMiddleware rbac.Middleware

	AuthHandler        *auth.Handler
	OrdersHandler      *orders.Handler
	PaymentsHandler    *payments.Handler
	PartiesHandler     *parties.Handler
	StockHandler       *stock.Handler
	NotifyHandler      *notify.Handler
	ChatHandler        *chat.Handler
	RealtimeHandler    *realtime.Handler
	JobHandler         *jobs.Handler
	PermissionsHandler *rbac.PermissionsHandler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with FeedFlow defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.AuthHandler != nil {
		r.Route("/auth", func(r chi.Router) {
			params.AuthHandler.MountRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(params.Authenticator.Authenticate)
				params.AuthHandler.MountProtected(r)
			})
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(params.Authenticator.Authenticate)

		if params.OrdersHandler != nil {
			r.Route("/orders", func(r chi.Router) {
				params.OrdersHandler.MountRoutes(r)
				if params.PaymentsHandler != nil {
					params.PaymentsHandler.MountOrderRoutes(r)
				}
			})
		}
		if params.PaymentsHandler != nil {
			r.Route("/payments", params.PaymentsHandler.MountRoutes)
		}
		if params.PartiesHandler != nil {
			r.Route("/parties", params.PartiesHandler.MountRoutes)
		}
		if params.StockHandler != nil {
			r.Route("/stock", params.StockHandler.MountRoutes)
		}
		if params.NotifyHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireAll(shared.PermNotificationRead))
				r.Route("/notifications", params.NotifyHandler.MountNotifications)
				r.Route("/subscriptions", params.NotifyHandler.MountSubscriptions)
			})
		}
		if params.ChatHandler != nil {
			r.Route("/chat", params.ChatHandler.MountRoutes)
		}
		if params.RealtimeHandler != nil {
			r.Method(http.MethodGet, "/ws", params.RealtimeHandler)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
