// Package web exposes the student and teacher HTTP API. Handlers are thin
// adapters over the progress tracker; no progress rules live here.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/NelyubinaIV/Ogegotovo/internal/export"
	"github.com/NelyubinaIV/Ogegotovo/internal/ingest"
	"github.com/NelyubinaIV/Ogegotovo/internal/progress"
)

// Server holds the dependencies of the HTTP API.
type Server struct {
	tracker *progress.Tracker
	results http.Handler // WebSocket ingestion endpoint, optional

	teacherKey     string
	teacherKeyHash string

	// ready reports whether the backing store is reachable. Nil means
	// always ready (memory backend).
	ready func(ctx context.Context) error
}

// ServerConfig holds the wiring for a Server.
type ServerConfig struct {
	Tracker        *progress.Tracker
	Results        http.Handler
	TeacherKey     string
	TeacherKeyHash string
	Ready          func(ctx context.Context) error
}

// NewServer creates the HTTP API server.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		tracker:        cfg.Tracker,
		results:        cfg.Results,
		teacherKey:     cfg.TeacherKey,
		teacherKeyHash: cfg.TeacherKeyHash,
		ready:          cfg.Ready,
	}
}

// Routes creates the HTTP router.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /api/students", s.handleRegister)
	mux.HandleFunc("GET /api/students/{token}", s.handleStudent)
	mux.HandleFunc("PATCH /api/students/{token}", s.handleUpdateProfile)

	mux.HandleFunc("GET /api/result", s.handleResult)
	if s.results != nil {
		mux.Handle("GET /ws/results", s.results)
	}

	mux.HandleFunc("GET /api/teacher/students", s.requireTeacher(s.handleRoster))
	mux.HandleFunc("GET /api/teacher/analytics", s.requireTeacher(s.handleAnalytics))
	mux.HandleFunc("GET /api/teacher/export.json", s.requireTeacher(s.handleExportJSON))
	mux.HandleFunc("GET /api/teacher/export.csv", s.requireTeacher(s.handleExportCSV))
	mux.HandleFunc("GET /api/teacher/export.xlsx", s.requireTeacher(s.handleExportXLSX))

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			slog.Warn("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

type registerRequest struct {
	Token    string `json:"token,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	// An empty body registers an anonymous student with a fresh token.
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token := req.Token
	if token == "" {
		token = progress.GenerateToken()
	} else if !progress.ValidToken(token) {
		writeError(w, http.StatusBadRequest, "invalid token format")
		return
	}

	rec, err := s.tracker.LoadOrCreate(r.Context(), token)
	if err != nil {
		slog.Error("failed to register student", "token", token, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if req.Nickname != "" || req.Avatar != "" {
		var nickname, avatar *string
		if req.Nickname != "" {
			nickname = &req.Nickname
		}
		if req.Avatar != "" {
			avatar = &req.Avatar
		}
		if rec, err = s.tracker.UpdateProfile(r.Context(), token, nickname, avatar); err != nil {
			slog.Error("failed to update profile", "token", token, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	writeJSON(w, http.StatusCreated, s.studentView(rec))
}

func (s *Server) handleStudent(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if !progress.ValidToken(token) {
		writeError(w, http.StatusBadRequest, "invalid token format")
		return
	}

	rec, err := s.tracker.StudentByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student not found")
			return
		}
		slog.Error("failed to load student", "token", token, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, s.studentView(rec))
}

type profileRequest struct {
	Nickname *string `json:"nickname"`
	Avatar   *string `json:"avatar"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if !progress.ValidToken(token) {
		writeError(w, http.StatusBadRequest, "invalid token format")
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.tracker.UpdateProfile(r.Context(), token, req.Nickname, req.Avatar)
	if err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student not found")
			return
		}
		slog.Error("failed to update profile", "token", token, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, s.studentView(rec))
}

// handleResult is the query-parameter ingestion channel: the embedding page
// redirects here with the task outcome encoded in the URL.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	report, err := ingest.ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !progress.ValidToken(report.Token) {
		writeError(w, http.StatusBadRequest, "invalid token format")
		return
	}

	if _, err := s.tracker.StudentByToken(r.Context(), report.Token); err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student not found")
			return
		}
		slog.Error("failed to load student", "token", report.Token, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	rec, err := s.tracker.SubmitResult(r.Context(), report.Token, progress.Submission{
		LessonID: report.LessonID,
		TaskID:   report.TaskID,
		Score:    report.Score,
		MaxScore: report.Max,
		Passed:   report.Passed,
		Source:   report.Source,
		Mistakes: report.Mistakes,
		Notes:    report.Notes,
	})
	if err != nil {
		slog.Error("failed to submit result", "token", report.Token, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, resultResponse{
		OK:               true,
		Message:          "Результат получен!",
		Candies:          rec.Candies,
		LessonsCompleted: len(rec.LessonsCompleted),
	})
}

type resultResponse struct {
	OK               bool   `json:"ok"`
	Message          string `json:"message"`
	Candies          int    `json:"candies"`
	LessonsCompleted int    `json:"lessonsCompleted"`
}

// requireTeacher gates a handler behind the shared teacher key, taken from
// the key query parameter or the X-Teacher-Key header. The comparison is
// constant time; a bcrypt hash takes precedence when configured.
func (s *Server) requireTeacher(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			key = r.Header.Get("X-Teacher-Key")
		}

		if !s.teacherKeyValid(key) {
			writeError(w, http.StatusForbidden, "invalid teacher key")
			return
		}
		next(w, r)
	}
}

func (s *Server) teacherKeyValid(key string) bool {
	if key == "" {
		return false
	}
	if s.teacherKeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.teacherKeyHash), []byte(key)) == nil
	}
	if s.teacherKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.teacherKey), []byte(key)) == 1
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	students, err := s.tracker.AllStudents(r.Context())
	if err != nil {
		slog.Error("failed to load roster", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entries := make([]rosterEntry, 0, len(students))
	for _, rec := range students {
		entries = append(entries, s.rosterView(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": entries, "total": len(entries)})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	students, err := s.tracker.AllStudents(r.Context())
	if err != nil {
		slog.Error("failed to load roster", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, s.buildAnalytics(students))
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, "json", "application/json", export.JSON)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	encode := export.CSV
	contentType := "text/csv; charset=utf-8"
	if r.URL.Query().Get("charset") == "windows-1251" {
		encode = export.CSVWindows1251
		contentType = "text/csv; charset=windows-1251"
	}
	s.serveExport(w, r, "csv", contentType, encode)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, "xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.XLSX)
}

func (s *Server) serveExport(w http.ResponseWriter, r *http.Request, ext, contentType string,
	encode func([]*progress.Record) ([]byte, error)) {

	students, err := s.tracker.AllStudents(r.Context())
	if err != nil {
		slog.Error("failed to load roster", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	data, err := encode(students)
	if err != nil {
		slog.Error("failed to encode export", "format", ext, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.FileName(ext, s.tracker.Now())))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": message})
}
