package rpc

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"offergate/native/campaign"
	"offergate/observability"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// Server exposes the claim and admin interfaces over HTTP.
type Server struct {
	factory    *campaign.Factory
	operator   [20]byte
	adminToken string
	log        *slog.Logger
	metrics    *observability.CampaignMetrics
}

// NewServer builds a server around the factory. Bearer-authenticated admin
// calls execute as the operator for factory operations and as the campaign
// owner for per-campaign ones; an empty adminToken disables them entirely.
func NewServer(factory *campaign.Factory, operator [20]byte, adminToken string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		factory:    factory,
		operator:   operator,
		adminToken: strings.TrimSpace(adminToken),
		log:        log,
		metrics:    observability.Metrics(),
	}
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1/campaigns", func(cr chi.Router) {
		cr.Get("/", s.handleListCampaigns)
		cr.Route("/{id}", func(ir chi.Router) {
			ir.Get("/", s.handleCampaignInfo)
			ir.Get("/canclaim/{addr}", s.handleCanClaim)
			ir.Get("/stats", s.handleStats)
			ir.Post("/claim", s.handleClaim)
		})
	})

	r.Route("/v1/admin", func(ar chi.Router) {
		ar.Use(s.requireAdmin)
		ar.Post("/campaigns", s.handleCreateCampaign)
		ar.Post("/discount-root", s.handleBuildDiscountRoot)
		ar.Post("/allocation-root", s.handleBuildAllocationRoot)
		ar.Route("/campaigns/{id}", func(ir chi.Router) {
			ir.Post("/discount-root", s.handleSetDiscountRoot)
			ir.Post("/eligibility", s.handleSetEligibility)
			ir.Post("/fees", s.handleSetFees)
			ir.Post("/pause", s.handlePause)
			ir.Post("/unpause", s.handleUnpause)
			ir.Post("/activity", s.handleRecordActivity)
			ir.Post("/distribute", s.handleDistribute)
		})
	})

	return r
}

// requestID tags every request with an identifier carried into log lines.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// requireAdmin gates the admin surface behind the configured bearer token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeError(w, http.StatusForbidden, "admin interface disabled")
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
