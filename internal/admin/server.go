package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/NaJiKuN/AIPoweredProBot/internal/ledger"
	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
	"github.com/NaJiKuN/AIPoweredProBot/internal/payment"
	"github.com/NaJiKuN/AIPoweredProBot/internal/repository"
	"github.com/NaJiKuN/AIPoweredProBot/internal/service"
)

type Server struct {
	addr      string
	username  string
	password  string
	log       *slog.Logger
	users     *service.UserService
	keys      *service.APIKeyService
	broadcast *service.BroadcastService
	sender    service.Sender
	entitle   *ledger.Ledger
	usage     *repository.UsageRepository
	router    *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, users *service.UserService, keys *service.APIKeyService, broadcast *service.BroadcastService, sender service.Sender, entitle *ledger.Ledger, usage *repository.UsageRepository) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:      addr,
		username:  username,
		password:  password,
		log:       log,
		users:     users,
		keys:      keys,
		broadcast: broadcast,
		sender:    sender,
		entitle:   entitle,
		usage:     usage,
		router:    r,
	}
	r.Post("/webhook/plisio", s.handlePlisioWebhook)
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Post("/broadcast", s.handleBroadcast)
		protected.Get("/stats", s.handleStats)
		protected.Get("/admins", s.handleListAdmins)
		protected.Route("/api-keys", func(r chi.Router) {
			r.Get("/", s.handleListKeys)
			r.Post("/", s.handleSetKey)
			r.Put("/{service}/active", s.handleKeyActive)
			r.Delete("/{service}", s.handleDeleteKey)
		})
		protected.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", s.handleUserStatus)
			r.Get("/usage", s.handleUserUsage)
			r.Post("/trial", s.handleGrantTrial)
			r.Post("/premium", s.handleGrantPremium)
			r.Post("/package", s.handleGrantPackage)
			r.Post("/credit", s.handleCreditWallet)
			r.Post("/promote", s.handlePromote)
			r.Post("/demote", s.handleDemote)
		})
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

// handlePlisioWebhook is the public payment callback. Deliveries can repeat;
// the ledger keys the credit on the transaction id so replays are no-ops.
func (s *Server) handlePlisioWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	event, err := payment.ParseWebhook(body)
	if err != nil {
		s.log.Error("plisio webhook", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !event.Completed() {
		s.log.Info("plisio webhook ignored", "tx", event.TransactionID, "status", event.Status)
		w.WriteHeader(http.StatusOK)
		return
	}
	amount, err := event.CreditAmount()
	if err != nil {
		s.log.Error("plisio webhook amount", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	applied, err := s.entitle.CreditWallet(r.Context(), event.UserID, amount, event.TransactionID)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			http.Error(w, "unknown user", http.StatusBadRequest)
			return
		}
		s.internalError(w, err)
		return
	}
	if applied {
		s.log.Info("wallet credited from payment", "user", event.UserID, "amount", amount, "tx", event.TransactionID)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	report, err := s.broadcast.Broadcast(r.Context(), s.sender, req.Message)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total":  report.Total,
		"sent":   report.Sent,
		"failed": report.Failed,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, premium, err := s.users.Counts(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	stats, err := s.usage.Stats(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"users_total":   total,
		"users_premium": premium,
		"usage":         stats,
	})
}

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	ids, err := s.users.AdminIDs(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"admin_ids": ids})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.keys.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]any{
			"service":   k.ServiceName,
			"is_active": k.IsActive,
			"added_by":  k.AddedBy,
			"added_at":  k.AddedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type setKeyRequest struct {
	Service string `json:"service"`
	Secret  string `json:"secret"`
	AddedBy int64  `json:"added_by"`
}

func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	var req setKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.keys.Set(r.Context(), req.Service, req.Secret, req.AddedBy); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type keyActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleKeyActive(w http.ResponseWriter, r *http.Request) {
	serviceName := chi.URLParam(r, "service")
	var req keyActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	found, err := s.keys.SetActive(r.Context(), serviceName, req.Active)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !found {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	found, err := s.keys.Delete(r.Context(), chi.URLParam(r, "service"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !found {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	status, err := s.entitle.Status(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleUserUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	stats, err := s.usage.StatsForUser(r.Context(), userID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type grantTrialRequest struct {
	Requests int    `json:"requests"`
	Days     int    `json:"days"`
	Key      string `json:"key"`
}

func (s *Server) handleGrantTrial(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req grantTrialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Requests <= 0 || req.Days <= 0 {
		http.Error(w, "requests and days must be positive", http.StatusBadRequest)
		return
	}
	s.applyGrant(w, s.entitle.GrantFreeTrial(r.Context(), userID, req.Requests, req.Days, req.Key))
}

type grantPremiumRequest struct {
	Days       int    `json:"days"`
	DailyLimit int    `json:"daily_limit"`
	Key        string `json:"key"`
}

func (s *Server) handleGrantPremium(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req grantPremiumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Days <= 0 || req.DailyLimit <= 0 {
		http.Error(w, "days and daily_limit must be positive", http.StatusBadRequest)
		return
	}
	s.applyGrant(w, s.entitle.GrantPremium(r.Context(), userID, req.Days, req.DailyLimit, req.Key))
}

type grantPackageRequest struct {
	Category string `json:"category"`
	Credits  int    `json:"credits"`
	Key      string `json:"key"`
}

func (s *Server) handleGrantPackage(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req grantPackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	category := models.Category(req.Category)
	switch category {
	case models.CategoryChatGPT, models.CategoryClaude, models.CategoryImage, models.CategoryVideo, models.CategorySuno:
	default:
		http.Error(w, "unknown category", http.StatusBadRequest)
		return
	}
	s.applyGrant(w, s.entitle.AddPackage(r.Context(), userID, category, req.Credits, req.Key))
}

type creditWalletRequest struct {
	Amount int64  `json:"amount"`
	TxID   string `json:"tx_id"`
}

func (s *Server) handleCreditWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req creditWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	applied, err := s.entitle.CreditWallet(r.Context(), userID, req.Amount, req.TxID)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"applied": applied})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	if err := s.users.Promote(r.Context(), userID); err != nil {
		s.notFoundOrInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDemote(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	err := s.users.Demote(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrSeedAdmin) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		s.notFoundOrInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) applyGrant(w http.ResponseWriter, err error) {
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil || id == 0 {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="aiproxybot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) notFoundOrInternal(w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	s.internalError(w, err)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
