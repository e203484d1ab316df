package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/unrolled/secure"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/logger"
	"bazar/backend/internal/service"
)

const defaultLoginRateLimit = 10

type Options struct {
	AllowedOrigin  string
	Production     bool
	LoginRateLimit int
}

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigin  string
	production     bool
	loginRateLimit int
	log            zerolog.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.LoginRateLimit <= 0 {
		opts.LoginRateLimit = defaultLoginRateLimit
	}
	return &API{
		service:        svc,
		auth:           auth,
		allowedOrigin:  opts.AllowedOrigin,
		production:     opts.Production,
		loginRateLimit: opts.LoginRateLimit,
		log:            logger.WithComponent("http"),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(a.log))
	r.Use(a.accessLog())
	r.Use(middleware.Recoverer)
	r.Use(a.securityHeaders())
	r.Use(a.cors)
	r.Use(limitBody)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Message: "method not allowed"})
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(a.loginLimiter()).Post("/login", a.handleLogin)
			r.With(a.optionalAuth).Post("/register", a.handleRegister)
			r.Group(func(r chi.Router) {
				r.Use(a.requireAuth)
				r.Get("/profile", a.handleProfile)
				r.Put("/profile", a.handleUpdateProfile)
				r.Put("/change-password", a.handleChangePassword)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.With(requirePermission(domain.PermUsersRead)).Get("/users", a.handleListUsers)
			r.With(requirePermission(domain.PermUsersWrite)).Put("/users/{id}/role", a.handleUpdateUserRole)
			r.With(requirePermission(domain.PermUsersWrite)).Put("/users/{id}/status", a.handleUpdateUserStatus)

			r.Route("/suppliers", func(r chi.Router) {
				r.With(requirePermission(domain.PermSuppliersRead)).Get("/", a.handleListSuppliers)
				r.With(requirePermission(domain.PermSuppliersWrite)).Post("/", a.handleCreateSupplier)
				r.With(requirePermission(domain.PermSuppliersRead)).Get("/{id}", a.handleGetSupplier)
				r.With(requirePermission(domain.PermSuppliersWrite)).Put("/{id}", a.handleUpdateSupplier)
				r.With(requirePermission(domain.PermSuppliersDelete)).Delete("/{id}", a.handleDeleteSupplier)
				r.With(requirePermission(domain.PermSuppliersWrite)).Post("/{id}/catalog", a.handleUpsertCatalogItem)
				r.With(requirePermission(domain.PermSuppliersWrite)).Put("/{id}/catalog/{productId}", a.handleUpsertCatalogItem)
				r.With(requirePermission(domain.PermSuppliersWrite)).Delete("/{id}/catalog/{productId}", a.handleRemoveCatalogItem)
			})

			r.Route("/clients", func(r chi.Router) {
				r.With(requirePermission(domain.PermClientsRead)).Get("/", a.handleListClients)
				r.With(requirePermission(domain.PermClientsWrite)).Post("/", a.handleCreateClient)
				r.With(requirePermission(domain.PermClientsRead)).Get("/{id}", a.handleGetClient)
				r.With(requirePermission(domain.PermClientsWrite)).Put("/{id}", a.handleUpdateClient)
				r.With(requirePermission(domain.PermClientsDelete)).Delete("/{id}", a.handleDeleteClient)
				r.With(requirePermission(domain.PermInvoicesRead)).Get("/{id}/invoices", a.handleClientInvoices)
			})

			r.Route("/products", func(r chi.Router) {
				r.With(requirePermission(domain.PermProductsRead)).Get("/", a.handleListProducts)
				r.With(requirePermission(domain.PermProductsWrite)).Post("/", a.handleCreateProduct)
				r.With(requirePermission(domain.PermProductsRead)).Get("/low-stock", a.handleLowStock)
				r.With(requirePermission(domain.PermProductsRead)).Get("/{id}", a.handleGetProduct)
				r.With(requirePermission(domain.PermProductsWrite)).Put("/{id}", a.handleUpdateProduct)
				r.With(requirePermission(domain.PermProductsDelete)).Delete("/{id}", a.handleDeleteProduct)
				r.With(requirePermission(domain.PermProductsWrite)).Put("/{id}/inventory", a.handleAdjustInventory)
				r.With(requirePermission(domain.PermProductsRead)).Get("/{id}/movements", a.handleListMovements)
			})

			r.Route("/invoices", func(r chi.Router) {
				r.With(requirePermission(domain.PermInvoicesRead)).Get("/", a.handleListInvoices)
				r.With(requirePermission(domain.PermInvoicesWrite)).Post("/", a.handleCreateInvoice)
				r.With(requirePermission(domain.PermInvoicesRead)).Get("/{id}", a.handleGetInvoice)
				r.With(requirePermission(domain.PermInvoicesWrite)).Put("/{id}", a.handleUpdateInvoice)
				r.With(requirePermission(domain.PermInvoicesDelete)).Delete("/{id}", a.handleDeleteInvoice)
				r.With(requirePermission(domain.PermInvoicesWrite)).Put("/{id}/status", a.handleInvoiceStatus)
				r.With(requirePermission(domain.PermInvoicesWrite)).Put("/{id}/payment", a.handleInvoicePayment)
			})

			r.With(requirePermission(domain.PermDashboardRead)).Get("/dashboard", a.handleDashboard)
		})
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "", map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			a.writeError(w, r, ErrUnauthorized)
			return
		}
		user, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actorFor(user))))
	})
}

// optionalAuth attaches an actor when a bearer token is sent and rejects bad
// tokens, but lets anonymous requests through.
func (a *API) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := bearerToken(r); !ok {
			next.ServeHTTP(w, r)
			return
		}
		a.requireAuth(next).ServeHTTP(w, r)
	})
}

// requirePermission passes when the actor holds at least one of perms.
func requirePermission(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, envelope{Message: ErrUnauthorized.Error()})
				return
			}
			if !domain.HasAnyPermission(actor.Permissions, perms...) {
				writeJSON(w, http.StatusForbidden, envelope{
					Message: ErrForbidden.Error(),
					Errors:  []string{"requires one of: " + strings.Join(perms, ", ")},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authorization) < len("bearer ") || !strings.EqualFold(authorization[:len("bearer ")], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authorization[len("bearer "):])
	return token, token != ""
}

func (a *API) loginLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(a.loginRateLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, envelope{Message: "too many login attempts, try again later"})
		}),
	)
}

func (a *API) securityHeaders() func(http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		IsDevelopment:         !a.production,
	})
	return sec.Handler
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) accessLog() func(http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		event := hlog.FromRequest(r).Info()
		if status >= http.StatusInternalServerError {
			event = hlog.FromRequest(r).Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func actorFrom(r *http.Request) (domain.Actor, error) {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok {
		return domain.Actor{}, ErrUnauthorized
	}
	return actor, nil
}
