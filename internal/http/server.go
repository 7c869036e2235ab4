package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucasmoraeslrm/tudinha-smart-learn-sub001/internal/auth"
	"github.com/lucasmoraeslrm/tudinha-smart-learn-sub001/internal/config"
	"github.com/lucasmoraeslrm/tudinha-smart-learn-sub001/internal/crypto"
	"github.com/lucasmoraeslrm/tudinha-smart-learn-sub001/internal/model"
	"github.com/lucasmoraeslrm/tudinha-smart-learn-sub001/internal/repository"
	"github.com/lucasmoraeslrm/tudinha-smart-learn-sub001/internal/session"
)

type Server struct {
	cfg     config.Config
	store   *repository.Store
	revoker *session.Revoker
}

func NewServer(cfg config.Config, store *repository.Store, revoker *session.Revoker) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		revoker: revoker,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// The deployed portals call one base path with an action query parameter.
	r.Post("/student-auth", s.handleAction)
	r.Get("/student-auth", s.handleAction)

	return r
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	switch {
	case r.Method == http.MethodPost && action == "login":
		s.handleLogin(w, r)
	case r.Method == http.MethodPost && action == "register":
		s.handleRegister(w, r)
	case r.Method == http.MethodGet && action == "verify":
		s.handleVerify(w, r)
	case r.Method == http.MethodPost && action == "logout":
		s.handleLogout(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown_action")
	}
}

type loginRequest struct {
	Codigo   string `json:"codigo"`
	Password string `json:"password"`
}

type registerRequest struct {
	Codigo    string  `json:"codigo"`
	Password  string  `json:"password"`
	Name      string  `json:"name"`
	AnoLetivo *string `json:"anoLetivo,omitempty"`
	Turma     *string `json:"turma,omitempty"`
	Age       *int    `json:"age,omitempty"`
}

type studentSummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Codigo    string  `json:"codigo"`
	Role      string  `json:"role"`
	EscolaID  *string `json:"escolaId,omitempty"`
	AnoLetivo *string `json:"anoLetivo,omitempty"`
	Turma     *string `json:"turma,omitempty"`
	Age       *int    `json:"age,omitempty"`
}

type loginResponse struct {
	Success      bool           `json:"success"`
	Student      studentSummary `json:"student"`
	SessionToken string         `json:"sessionToken"`
}

type registerResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Student studentSummary `json:"student"`
}

type verifyResponse struct {
	Success bool           `json:"success"`
	Student studentSummary `json:"student"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Codigo = strings.TrimSpace(req.Codigo)
	if req.Codigo == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	student, cred, err := s.store.GetStudentByCodigo(r.Context(), req.Codigo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		serverError(w, err)
		return
	}

	if err := crypto.CheckPassword(cred.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := auth.NewSessionToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.SessionTTL, auth.SessionClaims{
		StudentID: student.ID,
		Codigo:    student.Codigo,
	})
	if err != nil {
		serverError(w, err)
		return
	}

	summary := mapStudentSummary(student, "student")
	if profile, err := s.store.GetProfile(r.Context(), student.ID); err == nil {
		summary.Name = profile.Name
		summary.Role = profile.Role
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:      true,
		Student:      summary,
		SessionToken: token,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Codigo = strings.TrimSpace(req.Codigo)
	req.Name = strings.TrimSpace(req.Name)
	if req.Codigo == "" || req.Password == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		serverError(w, err)
		return
	}

	now := time.Now().UTC()
	student := model.Student{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Codigo:    req.Codigo,
		AnoLetivo: req.AnoLetivo,
		Turma:     req.Turma,
		Age:       req.Age,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateStudent(r.Context(), student, hash); err != nil {
		if errors.Is(err, repository.ErrCodigoTaken) {
			writeError(w, http.StatusConflict, "codigo_taken")
			return
		}
		serverError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Success: true,
		Message: "student registered",
		Student: mapStudentSummary(student, "student"),
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	claims, err := auth.ParseSessionToken(s.cfg.JWTSecret, token)
	if err != nil {
		if errors.Is(err, auth.ErrSessionExpired) {
			writeError(w, http.StatusUnauthorized, "session_expired")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	if claims.IssuedAt != nil {
		revoked, err := s.revoker.Revoked(r.Context(), claims.StudentID, claims.IssuedAt.Time)
		if err != nil {
			log.Printf("revocation check failed for student %s: %v", claims.StudentID, err)
		} else if revoked {
			writeError(w, http.StatusUnauthorized, "session_revoked")
			return
		}
	}

	// Re-fetched on every verify: deleting a student invalidates their
	// outstanding tokens, and profile changes apply without re-login.
	student, err := s.store.GetStudentByID(r.Context(), claims.StudentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		serverError(w, err)
		return
	}

	summary := mapStudentSummary(student, "student")
	if profile, err := s.store.GetProfile(r.Context(), student.ID); err == nil {
		summary.Name = profile.Name
		summary.Role = profile.Role
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Success: true,
		Student: summary,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	claims, err := auth.ParseSessionToken(s.cfg.JWTSecret, token)
	if err != nil {
		if errors.Is(err, auth.ErrSessionExpired) {
			writeError(w, http.StatusUnauthorized, "session_expired")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	if s.revoker.Enabled() {
		if err := s.revoker.RevokeAll(r.Context(), claims.StudentID, time.Now().UTC()); err != nil {
			serverError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func mapStudentSummary(student model.Student, role string) studentSummary {
	return studentSummary{
		ID:        student.ID,
		Name:      student.Name,
		Codigo:    student.Codigo,
		Role:      role,
		EscolaID:  student.EscolaID,
		AnoLetivo: student.AnoLetivo,
		Turma:     student.Turma,
		Age:       student.Age,
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
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

// serverError logs the underlying error with a correlation id and returns a
// generic body, never the raw error text.
func serverError(w http.ResponseWriter, err error) {
	requestID := uuid.NewString()
	log.Printf("server error [%s]: %v", requestID, err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":     "server_error",
		"requestId": requestID,
	})
}
