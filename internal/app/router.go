package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ms-fulfillment/internal/auth"
	"ms-fulfillment/internal/cart/cart_api"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/order/order_api"
	"ms-fulfillment/internal/tickets/ticket_api"
	"ms-fulfillment/internal/utils"
)

// NewRouter mounts the public health check and the authenticated API.
func NewRouter(s *Services, verifier auth.TokenVerifier, allowedOrigins []string, log *logger.Logger) http.Handler {
	r := baseRouter(allowedOrigins, log)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, log))
		r.Route("/api/cart", (&cart_api.Handler{CartService: s.Cart, Logger: log}).Routes)
		r.Route("/api/orders", order_api.NewHandler(s.Orders, log).Routes)
		r.Route("/api/tickets", ticket_api.NewHandler(s.Tickets, log).Routes)
	})
	log.Info("ROUTER", "Routes registered under /api/cart, /api/orders and /api/tickets")
	return r
}

// NewGateRouter serves only the ticket endpoints used at the venue.
func NewGateRouter(h *ticket_api.Handler, verifier auth.TokenVerifier, allowedOrigins []string, log *logger.Logger) http.Handler {
	r := baseRouter(allowedOrigins, log)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, log))
		r.Route("/api/tickets", h.Routes)
	})
	return r
}

func baseRouter(allowedOrigins []string, log *logger.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})
	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, fmt.Sprintf("%s [%s]", r.URL.Path, middleware.GetReqID(r.Context())), ww.Status(), time.Since(start))
		})
	}
}
