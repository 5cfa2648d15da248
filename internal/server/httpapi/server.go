// Package httpapi exposes the back-office over HTTP: the login/session
// endpoints, the role-gated dashboard routes, and the JSON APIs for identity
// management and asset ingestion.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vektorburo/backoffice/internal/common"
	"github.com/vektorburo/backoffice/internal/logging"
	"github.com/vektorburo/backoffice/internal/server/auth"
	"github.com/vektorburo/backoffice/internal/server/config"
	"github.com/vektorburo/backoffice/internal/server/models"
	"github.com/vektorburo/backoffice/internal/server/services"
)

// CredentialService is the slice of the user service the HTTP layer needs.
type CredentialService interface {
	Verify(ctx context.Context, email, password, claimedRole, claimedName string) (*auth.Claim, error)
	CreateUser(ctx context.Context, email, name, role, password, avatarURL string) (*models.User, error)
	UpdateUser(ctx context.Context, email string, patch services.UserPatch) (*models.User, error)
	DeleteUser(ctx context.Context, email string) error
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// IngestService is the slice of the asset service the HTTP layer needs.
type IngestService interface {
	MintTicket(ctx context.Context) (*services.Ticket, error)
	Register(ctx context.Context, in services.RegisterInput) (*models.Asset, error)
	List(ctx context.Context, collection models.Collection) ([]*models.Asset, error)
	UpdatePortfolio(ctx context.Context, id string, patch services.PortfolioPatch) (*models.Asset, error)
	DeletePortfolio(ctx context.Context, id string) error
}

type Server struct {
	cfg    *config.Config
	logger logging.Logger
	users  CredentialService
	assets IngestService
}

func NewServer(cfg *config.Config, logger logging.Logger, users CredentialService, assets IngestService) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.With("module", "httpapi"),
		users:  users,
		assets: assets,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// page gates: authorization failures resolve to redirects, never errors
	r.With(s.redirectIfAuthenticated).Get(loginPath, s.handlePage)
	r.Route(dashboardPath, func(r chi.Router) {
		r.Use(s.requirePageSession)
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requirePageAdmin)
			r.Get("/", s.handlePage)
			r.Get("/*", s.handlePage)
		})
		r.Get("/", s.handlePage)
		r.Get("/*", s.handlePage)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/logout", s.handleLogout)
			r.Get("/me", s.handleGetMe)

			r.Post("/uploads", s.handleMintTicket)

			r.Get("/cad-files", s.handleList(models.CollectionCAD))
			r.Post("/cad-files", s.handleRegister(models.CollectionCAD))
			r.Get("/invoices", s.handleList(models.CollectionInvoice))
			r.Post("/invoices", s.handleRegister(models.CollectionInvoice))
			r.Get("/documents", s.handleList(models.CollectionDocument))
			r.Post("/documents", s.handleRegister(models.CollectionDocument))

			r.Route("/portfolio", func(r chi.Router) {
				r.Get("/", s.handleList(models.CollectionPortfolio))
				r.Post("/", s.handleRegister(models.CollectionPortfolio))
				r.Patch("/{assetID}", s.handleUpdatePortfolio)
				r.Delete("/{assetID}", s.handleDeletePortfolio)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Patch("/{email}", s.handleUpdateUser)
				r.Delete("/{email}", s.handleDeleteUser)
			})
		})
	})

	return r
}

// handlePage acknowledges a page navigation that passed its gate. The pages
// themselves are static frontend assets served by the edge; this server owns
// only the redirect contract.
func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
	Name     string `json:"name,omitempty"`
}

type userSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func claimSummary(c *auth.Claim) userSummary {
	return userSummary{ID: c.ID, Name: c.Name, Email: c.Email, Role: c.Role, AvatarURL: c.AvatarURL}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	claim, err := s.users.Verify(r.Context(), req.Email, req.Password, req.Role, req.Name)
	if err != nil {
		// one generic answer regardless of which sub-check failed
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	capsule, err := auth.Issue(*claim, []byte(s.cfg.SecretKey), s.cfg.SessionValidityDuration)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	s.setSessionCookie(w, capsule, int(s.cfg.SessionValidityDuration.Seconds()))
	writeJSON(w, http.StatusOK, map[string]any{"user": claimSummary(claim)})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claim := claimFromContext(r.Context())
	if claim == nil {
		writeError(w, http.StatusUnauthorized, "invalid_session")
		return
	}
	writeJSON(w, http.StatusOK, claimSummary(claim))
}

func (s *Server) handleMintTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.assets.MintTicket(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), "ticket mint failed", "error", err.Error())
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"storageKey": ticket.StorageKey,
		"uploadUrl":  ticket.UploadURL,
	})
}

type registerRequest struct {
	StorageKey     string `json:"storageKey"`
	FileName       string `json:"fileName,omitempty"`
	InvoiceType    string `json:"invoiceType,omitempty"`
	Name           string `json:"name,omitempty"`
	Description    string `json:"description,omitempty"`
	LogoStorageKey string `json:"logoStorageKey,omitempty"`
}

type assetResponse struct {
	ID          string `json:"id"`
	Collection  string `json:"collection"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InvoiceType string `json:"invoiceType,omitempty"`
	StorageKey  string `json:"storageKey"`
	URL         string `json:"url"`
	LogoURL     string `json:"logoUrl,omitempty"`
	UploadedBy  string `json:"uploadedBy"`
	CreatedAt   int64  `json:"createdAt"`
}

func toAssetResponse(a *models.Asset) assetResponse {
	return assetResponse{
		ID:          a.ID,
		Collection:  string(a.Collection),
		Name:        a.Name,
		Description: a.Description,
		InvoiceType: a.InvoiceType,
		StorageKey:  a.StorageKey,
		URL:         a.URL,
		LogoURL:     a.LogoURL,
		UploadedBy:  a.UploadedBy,
		CreatedAt:   a.CreatedAt.Unix(),
	}
}

func (s *Server) handleRegister(collection models.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if req.StorageKey == "" {
			writeError(w, http.StatusBadRequest, "missing_storage_key")
			return
		}

		name := req.FileName
		if name == "" {
			name = req.Name
		}
		if name == "" {
			writeError(w, http.StatusBadRequest, "missing_name")
			return
		}

		// uploader identity comes from the verified capsule, never the body
		uploadedBy := ""
		if claim := claimFromContext(r.Context()); claim != nil {
			uploadedBy = claim.Email
		}

		asset, err := s.assets.Register(r.Context(), services.RegisterInput{
			Collection:     collection,
			Name:           name,
			Description:    req.Description,
			InvoiceType:    req.InvoiceType,
			StorageKey:     req.StorageKey,
			LogoStorageKey: req.LogoStorageKey,
			UploadedBy:     uploadedBy,
		})
		if err != nil {
			s.logger.Error(r.Context(), "asset registration failed",
				"collection", string(collection), "error", err.Error())
			s.writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAssetResponse(asset))
	}
}

func (s *Server) handleList(collection models.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := s.assets.List(r.Context(), collection)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		resp := make([]assetResponse, 0, len(items))
		for _, a := range items {
			resp = append(resp, toAssetResponse(a))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type portfolioPatchRequest struct {
	Name           string `json:"name,omitempty"`
	Description    string `json:"description,omitempty"`
	StorageKey     string `json:"storageKey,omitempty"`
	LogoStorageKey string `json:"logoStorageKey,omitempty"`
}

func (s *Server) handleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolioPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	asset, err := s.assets.UpdatePortfolio(r.Context(), chi.URLParam(r, "assetID"), services.PortfolioPatch{
		Name:           req.Name,
		Description:    req.Description,
		StorageKey:     req.StorageKey,
		LogoStorageKey: req.LogoStorageKey,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(asset))
}

func (s *Server) handleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	if err := s.assets.DeletePortfolio(r.Context(), chi.URLParam(r, "assetID")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createUserRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Password  string `json:"password"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func userToSummary(u *models.User) userSummary {
	return userSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, AvatarURL: u.AvatarURL}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := make([]userSummary, 0, len(list))
	for _, u := range list {
		resp = append(resp, userToSummary(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" || !models.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := s.users.CreateUser(r.Context(), req.Email, req.Name, req.Role, req.Password, req.AvatarURL)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "email_taken")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userToSummary(user))
}

type updateUserRequest struct {
	Name      *string `json:"name,omitempty"`
	Role      *string `json:"role,omitempty"`
	Password  *string `json:"password,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Role != nil && !models.ValidRole(*req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	email := strings.TrimSpace(strings.ToLower(chi.URLParam(r, "email")))
	user, err := s.users.UpdateUser(r.Context(), email, services.UserPatch{
		Name:      req.Name,
		Role:      req.Role,
		Password:  req.Password,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userToSummary(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(strings.ToLower(chi.URLParam(r, "email")))
	if err := s.users.DeleteUser(r.Context(), email); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps service failures to responses. Upload-path failures
// are retryable by re-running the whole three-phase sequence; nothing here is
// retried server-side.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, common.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_registered")
	case errors.Is(err, common.ErrUnresolvableHandle):
		writeError(w, http.StatusBadGateway, "unresolvable_handle")
	case errors.Is(err, common.ErrBrokerUnavailable):
		writeError(w, http.StatusBadGateway, "broker_unavailable")
	case errors.Is(err, common.ErrPersistenceFailure):
		writeError(w, http.StatusInternalServerError, "persistence_failure")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
