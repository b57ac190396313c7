package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sortbin/internal/api"
	"sortbin/internal/config"
	"sortbin/internal/identity"
	"sortbin/internal/logging"
	"sortbin/internal/services"
	"sortbin/internal/session"
)

const (
	maxImageBytes   = 10 << 20
	maxAudioBytes   = 10 << 20
	maxJSONBytes    = 64 << 10
	defaultHistory  = 20
	maxHistoryLimit = 500
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("paths.api_bind is required to serve the capture device")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(strings.TrimSpace(cfg.Paths.APIToken)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()

	// Capture device routes stay unauthenticated; the firmware cannot send headers.
	mux.HandleFunc("GET /test", s.handleTest)
	mux.HandleFunc("POST /image", s.handleImage)
	mux.HandleFunc("POST /distance", s.handleDistance)

	mux.HandleFunc("GET /api/status", authMiddleware(token, s.handleStatus))
	mux.HandleFunc("GET /api/session", authMiddleware(token, s.handleSession))
	mux.HandleFunc("POST /api/session/start", authMiddleware(token, s.handleSessionStart))
	mux.HandleFunc("POST /api/identity", authMiddleware(token, s.handleIdentity))
	mux.HandleFunc("POST /api/identity/audio", authMiddleware(token, s.handleIdentityAudio))
	mux.HandleFunc("GET /api/users", authMiddleware(token, s.handleUsers))
	mux.HandleFunc("GET /api/users/{name}", authMiddleware(token, s.handleUser))
	mux.HandleFunc("POST /api/notifications/test", authMiddleware(token, s.handleTestNotification))
	return withRequestID(mux)
}

// withRequestID tags each request context with the caller's X-Request-ID, or
// a fresh one, and echoes it back.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleTest(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Server is running!")
}

func (s *apiServer) handleImage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageBytes))
	if err != nil {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, api.DeviceResponse{Status: "error", Message: "image too large"})
		return
	}
	// The session commits regardless of whether the camera stays connected.
	result, err := s.daemon.machine.OnImageReceived(context.WithoutCancel(r.Context()), body)
	if err != nil {
		s.writeJSON(w, statusForError(err), api.DeviceResponse{Status: "error", Message: errorMessage(err)})
		return
	}
	s.writeJSON(w, http.StatusOK, api.ImageResponse{
		Status:   "success",
		Message:  "Image processed and best item info sent.",
		BestItem: result.BestItem,
		Category: string(result.Category),
		Warning:  result.Warning,
	})
}

func (s *apiServer) handleDistance(w http.ResponseWriter, r *http.Request) {
	code, err := decodeProximity(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, api.DeviceResponse{Status: "error", Message: "Invalid data"})
		return
	}
	if _, err := s.daemon.machine.OnProximityEvent(context.WithoutCancel(r.Context()), code); err != nil {
		s.writeJSON(w, statusForError(err), api.DeviceResponse{Status: "error", Message: errorMessage(err)})
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeviceResponse{Status: "success", Message: "Status data received"})
}

// decodeProximity reads {"status": <int>}. A missing, null, fractional, or
// non-numeric status is rejected.
func decodeProximity(r io.Reader) (int, error) {
	var payload struct {
		Status *json.Number `json:"status"`
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return 0, err
	}
	if payload.Status == nil {
		return 0, errors.New("status is required")
	}
	code, err := strconv.Atoi(payload.Status.String())
	if err != nil {
		return 0, fmt.Errorf("status must be an integer: %w", err)
	}
	return code, nil
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleSession(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(s.daemon.machine.Snapshot()))
}

func (s *apiServer) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	snap := s.daemon.machine.Start(r.Context())
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(snap))
}

func (s *apiServer) handleIdentity(w http.ResponseWriter, r *http.Request) {
	var req api.IdentityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid identity payload", "")
		return
	}
	ctx := context.WithoutCancel(r.Context())
	machine := s.daemon.machine

	var (
		result identity.Result
		snap   session.Snapshot
		err    error
	)
	switch {
	case strings.TrimSpace(req.Text) != "":
		result, snap, err = machine.ResolveUtterance(ctx, req.Text)
	case strings.TrimSpace(req.Name) != "" || req.ID != nil || req.Unknown:
		result = identity.Result{Name: identity.NormalizeName(req.Name), ID: req.ID, Unknown: req.Unknown}
		if !result.Known() {
			result = identity.UnknownResult()
		}
		snap, err = machine.OnIdentityResolved(ctx, result)
	default:
		s.writeError(w, http.StatusBadRequest, "text or name is required", "")
		return
	}
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, identityResponse(result, snap))
}

func (s *apiServer) handleIdentityAudio(w http.ResponseWriter, r *http.Request) {
	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "audio too large", "")
		return
	}
	result, snap, err := s.daemon.machine.TranscribeUtterance(context.WithoutCancel(r.Context()), audio, r.Header.Get("Content-Type"))
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, identityResponse(result, snap))
}

func identityResponse(result identity.Result, snap session.Snapshot) api.IdentityResponse {
	resp := api.IdentityResponse{
		Identity: result.String(),
		Unknown:  !result.Known(),
		Session:  api.FromSnapshot(snap),
	}
	if result.Known() {
		resp.Name = result.Name
		resp.ID = result.ID
	}
	return resp
}

func (s *apiServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.daemon.store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	s.writeJSON(w, http.StatusOK, api.UserListResponse{Users: api.FromUsers(users)})
}

func (s *apiServer) handleUser(w http.ResponseWriter, r *http.Request) {
	name := identity.NormalizeName(r.PathValue("name"))
	if name == "" {
		s.writeError(w, http.StatusNotFound, "user not found", "")
		return
	}
	limit := defaultHistory
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid history limit", "")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	user, err := s.daemon.store.Lookup(r.Context(), name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if user == nil {
		s.writeError(w, http.StatusNotFound, "user not found", "")
		return
	}
	history, err := s.daemon.store.History(r.Context(), name, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	resp := api.UserDetailResponse{User: api.FromUser(user), History: make([]api.Disposal, 0, len(history))}
	for _, d := range history {
		resp.History = append(resp.History, api.FromDisposal(d))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("%s: %v", message, err), "")
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotificationResponse{Sent: sent, Message: message})
}

// statusForError maps session error kinds onto HTTP status codes. State
// errors are 403 because the capture firmware treats that code as "not now".
func statusForError(err error) int {
	switch session.KindOf(err) {
	case session.KindInvalidStateTransition, session.KindDuplicateImage:
		return http.StatusForbidden
	case session.KindPreconditionFailed:
		return http.StatusBadRequest
	case session.KindExternalServiceFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var sessionErr *session.Error
	if errors.As(err, &sessionErr) {
		return sessionErr.Message
	}
	return err.Error()
}

func (s *apiServer) writeSessionError(w http.ResponseWriter, err error) {
	s.writeError(w, statusForError(err), errorMessage(err), string(session.KindOf(err)))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}
