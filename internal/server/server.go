package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kodix/kodix/internal/caretask"
	"github.com/kodix/kodix/internal/config"
	"github.com/kodix/kodix/internal/handler"
	"github.com/kodix/kodix/internal/middleware"
	"github.com/kodix/kodix/internal/store"
	ws "github.com/kodix/kodix/internal/websocket"
)

type Server struct {
	db              *sql.DB
	hub             *ws.Hub
	authH           *handler.AuthHandler
	teamH           *handler.TeamHandler
	invitationH     *handler.InvitationHandler
	careH           *handler.CareHandler
	calendarEventH  *handler.CalendarEventHandler
	cashbackH       *handler.CashbackHandler
	settingsH       *handler.SettingsHandler
	sessionStore    *store.SessionStore
	teamStore       *store.TeamStore
	loginCodeStore  *store.LoginCodeStore
	invitationStore *store.InvitationStore
	rateLimiter     *middleware.RateLimiter
	originPatterns  []string
	logger          *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, mailer handler.Mailer, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	teamStore := store.NewTeamStore(db)
	sessionStore := store.NewSessionStore(db)
	loginCodeStore := store.NewLoginCodeStore(db)
	invitationStore := store.NewInvitationStore(db)
	careTaskStore := store.NewCareTaskStore(db)
	eventStore := store.NewEventStore(db)
	settingsStore := store.NewSettingsStore(db)
	cashbackStore := store.NewCashbackStore(db)
	voucherStore := store.NewVoucherStore(db)

	board := caretask.NewBoard(careTaskStore.ListRange)
	syncer := caretask.NewSyncer(eventStore, careTaskStore)
	careH := handler.NewCareHandler(careTaskStore, settingsStore, board, syncer, cfg.Timezone, hub, logger.With("component", "care"))

	return &Server{
		db:              db,
		hub:             hub,
		authH:           handler.NewAuthHandler(userStore, teamStore, sessionStore, loginCodeStore, mailer, cfg.SessionTTL, logger.With("component", "auth")),
		teamH:           handler.NewTeamHandler(teamStore, sessionStore, hub, logger.With("component", "team")),
		invitationH:     handler.NewInvitationHandler(invitationStore, teamStore, userStore, sessionStore, mailer, hub, logger.With("component", "invitation")),
		careH:           careH,
		calendarEventH:  handler.NewCalendarEventHandler(eventStore, careTaskStore, careH, logger.With("component", "calendar")),
		cashbackH:       handler.NewCashbackHandler(cashbackStore, voucherStore, cfg.RedemptionCap, hub, logger.With("component", "cashback")),
		settingsH:       handler.NewSettingsHandler(teamStore, userStore, settingsStore, hub, logger.With("component", "settings")),
		sessionStore:    sessionStore,
		teamStore:       teamStore,
		loginCodeStore:  loginCodeStore,
		invitationStore: invitationStore,
		rateLimiter:     middleware.NewRateLimiter(),
		originPatterns:  cfg.OriginPatterns,
		logger:          logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// LoginCodeStore returns the login code store for cleanup tasks.
func (s *Server) LoginCodeStore() *store.LoginCodeStore {
	return s.loginCodeStore
}

// InvitationStore returns the invitation store for cleanup tasks.
func (s *Server) InvitationStore() *store.InvitationStore {
	return s.invitationStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /auth/signup", s.rateLimitedHandler(s.authH.Signup))
	outerMux.HandleFunc("POST /auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /auth/verify", s.rateLimitedHandler(s.authH.Verify))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes, wrapped with RequireAuth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.teamStore, s.logger.With("component", "auth"))
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, middleware.AuthLimit)
	return rl(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/me", s.authH.Me)
	mux.HandleFunc("PUT /api/me", s.settingsH.UpdateProfile)

	// Teams and membership
	mux.HandleFunc("GET /api/teams", s.teamH.ListTeams)
	mux.HandleFunc("POST /api/teams", s.settingsH.CreateTeam)
	mux.HandleFunc("POST /api/teams/switch", s.teamH.Switch)
	mux.HandleFunc("PUT /api/team", s.settingsH.RenameTeam)
	mux.HandleFunc("GET /api/apps/{app}/settings", s.settingsH.AppSettings)
	mux.HandleFunc("GET /api/team/members", s.teamH.ListMembers)
	mux.HandleFunc("DELETE /api/team/members/{userId}", s.teamH.RemoveMember)
	mux.HandleFunc("PUT /api/team/members/{userId}/roles", s.teamH.UpdateRoles)

	// Invitations
	mux.HandleFunc("GET /api/team/invitations", s.invitationH.List)
	mux.HandleFunc("POST /api/team/invitations", s.invitationH.Invite)
	mux.HandleFunc("DELETE /api/team/invitations/{id}", s.invitationH.Delete)
	mux.HandleFunc("GET /api/invitations", s.invitationH.ListMine)
	mux.HandleFunc("POST /api/invitations/{id}/accept", s.invitationH.Accept)
	mux.HandleFunc("POST /api/invitations/{id}/decline", s.invitationH.Decline)

	// Care tasks
	mux.HandleFunc("GET /api/care/tasks", s.careH.List)
	mux.HandleFunc("POST /api/care/tasks", s.careH.Create)
	mux.HandleFunc("PUT /api/care/tasks/{id}", s.careH.Update)
	mux.HandleFunc("POST /api/care/tasks/{id}/done", s.careH.ToggleDone)
	mux.HandleFunc("DELETE /api/care/tasks/{id}", s.careH.Delete)
	mux.HandleFunc("POST /api/care/unlock", s.careH.Unlock)
	mux.HandleFunc("POST /api/care/sync", s.careH.Sync)

	// Calendar events
	mux.HandleFunc("GET /api/care/events", s.calendarEventH.List)
	mux.HandleFunc("POST /api/care/events", s.calendarEventH.Create)
	mux.HandleFunc("PUT /api/care/events/{id}", s.calendarEventH.Update)
	mux.HandleFunc("DELETE /api/care/events/{id}", s.calendarEventH.Delete)

	// Cashback
	mux.HandleFunc("GET /api/cashback/clients", s.cashbackH.ListClients)
	mux.HandleFunc("GET /api/cashback/clients/{id}", s.cashbackH.GetClient)
	mux.HandleFunc("POST /api/cashback/clients/{id}/redemption", s.cashbackH.PreviewRedemption)
	mux.HandleFunc("POST /api/cashback/clients/{id}/vouchers", s.cashbackH.CreateVoucher)
	mux.HandleFunc("GET /api/cashback/clients/{id}/vouchers", s.cashbackH.ListVouchers)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.originPatterns, s.logger.With("component", "websocket")))
}
