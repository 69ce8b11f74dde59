package deskapp

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/phillip-england/checkdesk/internal/middleware"
	"github.com/phillip-england/checkdesk/internal/roster"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxUploadBytes = 32 << 20
	maxFormBytes   = 64 << 10
	xlsxMime       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

//go:embed templates/desk.html templates/panel.html
var templatesFS embed.FS

type Config struct {
	Addr         string
	ProfilePath  string
	RosterPath   string
	ExportDir    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type pageData struct {
	Error   string
	Success string
	Snap    Snapshot
}

type server struct {
	desk      *Desk
	exportDir string
	deskTmpl  *template.Template
	panelTmpl *template.Template
	metrics   http.Handler
}

func DefaultConfigFromEnv() Config {
	return Config{
		Addr:         envOrDefault("DESK_ADDR", ":8090"),
		ProfilePath:  envOrDefault("DESK_PROFILE", ""),
		RosterPath:   envOrDefault("DESK_ROSTER", ""),
		ExportDir:    envOrDefault("DESK_EXPORT_DIR", "exports"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

func Run(ctx context.Context, cfg Config) error {
	profile, err := LoadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	desk := NewDesk(profile, registry, time.Now)
	if cfg.RosterPath != "" {
		if _, err := desk.LoadRosterFile(cfg.RosterPath); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(desk, registry, cfg.ExportDir),
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("desk listening on http://localhost%s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewHandler builds the desk's HTTP surface. gatherer serves /metrics.
func NewHandler(desk *Desk, gatherer prometheus.Gatherer, exportDir string) http.Handler {
	s := &server{
		desk:      desk,
		exportDir: exportDir,
		deskTmpl:  template.Must(template.ParseFS(templatesFS, "templates/desk.html")),
		panelTmpl: template.Must(template.ParseFS(templatesFS, "templates/panel.html")),
		metrics:   promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.HandlerFunc(s.deskPage))
	mux.Handle("/panel", http.HandlerFunc(s.panelPage))
	mux.Handle("/panel.png", http.HandlerFunc(s.panelImage))
	mux.Handle("/roster", http.HandlerFunc(s.uploadRoster))
	mux.Handle("/roster/export", http.HandlerFunc(s.exportRoster))
	mux.Handle("/roster/save", http.HandlerFunc(s.saveRoster))
	mux.Handle("/scan", http.HandlerFunc(s.scan))
	mux.Handle("/settings", http.HandlerFunc(s.settings))
	mux.Handle("/api/state", http.HandlerFunc(s.state))
	mux.Handle("/api/health", http.HandlerFunc(s.health))
	mux.Handle("/metrics", s.metrics)

	csp := strings.Join([]string{
		"default-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data:",
		"script-src 'self' 'unsafe-inline'",
		"connect-src 'self'",
		"frame-ancestors 'none'",
	}, "; ")

	return middleware.Chain(
		mux,
		middleware.RequestLog("/api/state", "/panel.png", "/metrics"),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: csp}),
	)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) deskPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data := pageData{
		Error:   r.URL.Query().Get("error"),
		Success: r.URL.Query().Get("success"),
		Snap:    s.desk.Snapshot(),
	}
	if err := renderHTMLTemplate(w, s.deskTmpl, data); err != nil {
		http.Error(w, "template render failed", http.StatusInternalServerError)
		log.Printf("desk template render failed: %v", err)
	}
}

func (s *server) panelPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data := pageData{Snap: s.desk.Snapshot()}
	if err := renderHTMLTemplate(w, s.panelTmpl, data); err != nil {
		http.Error(w, "template render failed", http.StatusInternalServerError)
		log.Printf("panel template render failed: %v", err)
	}
}

func (s *server) panelImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var buf bytes.Buffer
	if err := writeBadge(&buf, s.desk.Last()); err != nil {
		http.Error(w, "badge render failed", http.StatusInternalServerError)
		log.Printf("panel badge render failed: %v", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *server) uploadRoster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("roster_file")
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "roster file is required")
		return
	}
	defer file.Close()

	count, err := s.desk.LoadRoster(file, header.Filename)
	if err != nil {
		log.Printf("roster upload failed: %v", err)
		s.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.succeed(w, r, fmt.Sprintf("Loaded %d rows.", count), map[string]any{
		"message": "roster loaded",
		"rows":    count,
	})
}

func (s *server) exportRoster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var buf bytes.Buffer
	if err := s.desk.WriteRoster(&buf); err != nil {
		if errors.Is(err, roster.ErrNoRoster) {
			writeError(w, http.StatusConflict, "no roster loaded")
			return
		}
		log.Printf("roster export failed: %v", err)
		writeError(w, http.StatusInternalServerError, "unable to export roster")
		return
	}
	w.Header().Set("Content-Type", xlsxMime)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": exportName(s.desk.RosterName(), ""),
	}))
	_, _ = w.Write(buf.Bytes())
}

func (s *server) saveRoster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.exportDir == "" {
		s.fail(w, r, http.StatusServiceUnavailable, "export directory is not configured")
		return
	}
	stamp := time.Now().Format("20060102-150405")
	path, err := s.desk.ExportRoster(filepath.Join(s.exportDir, exportName(s.desk.RosterName(), stamp)))
	if err != nil {
		if errors.Is(err, roster.ErrNoRoster) {
			s.fail(w, r, http.StatusConflict, "no roster loaded")
			return
		}
		log.Printf("roster save failed: %v", err)
		s.fail(w, r, http.StatusInternalServerError, "unable to save roster")
		return
	}
	s.succeed(w, r, "Saved "+path, map[string]any{"message": "roster saved", "path": path})
}

type scanRequest struct {
	Scan string `json:"scan"`
}

func (s *server) scan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	var req scanRequest
	if isJSONRequest(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.fail(w, r, http.StatusBadRequest, "invalid form submission")
			return
		}
		req.Scan = r.FormValue("scan")
	}

	entry, err := s.desk.Scan(req.Scan)
	if err != nil {
		if errors.Is(err, roster.ErrNoRoster) {
			s.fail(w, r, http.StatusConflict, "load a roster before scanning")
			return
		}
		s.fail(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, entry)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) settings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	var update SettingsUpdate
	if isJSONRequest(r) {
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		parsed, err := settingsFromForm(r)
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, err.Error())
			return
		}
		update = parsed
	}

	settings, err := s.desk.UpdateSettings(update)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrDeadlineLocked) {
			status = http.StatusConflict
		} else if errors.Is(err, ErrInvalidSettings) {
			status = http.StatusBadRequest
		}
		s.fail(w, r, status, err.Error())
		return
	}
	s.succeed(w, r, "Settings saved.", settings)
}

func (s *server) state(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.desk.Snapshot())
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	if wantsJSON(r) {
		writeError(w, status, message)
		return
	}
	http.Redirect(w, r, "/?error="+url.QueryEscape(message), http.StatusSeeOther)
}

func (s *server) succeed(w http.ResponseWriter, r *http.Request, message string, payload any) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, payload)
		return
	}
	http.Redirect(w, r, "/?success="+url.QueryEscape(message), http.StatusSeeOther)
}

func settingsFromForm(r *http.Request) (SettingsUpdate, error) {
	if err := r.ParseForm(); err != nil {
		return SettingsUpdate{}, errors.New("invalid form submission")
	}
	var update SettingsUpdate
	intField := func(name string) (*int, error) {
		raw := strings.TrimSpace(r.FormValue(name))
		if raw == "" {
			return nil, nil
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", name)
		}
		return &value, nil
	}

	var err error
	if update.IdentifierColumn, err = intField("identifier_column"); err != nil {
		return update, err
	}
	if update.CardColumn, err = intField("card_column"); err != nil {
		return update, err
	}
	if update.Total, err = intField("total"); err != nil {
		return update, err
	}
	if deadline := strings.TrimSpace(r.FormValue("deadline")); deadline != "" {
		update.Deadline = &deadline
	}
	if _, ok := r.PostForm["overwrite_present"]; ok {
		overwrite := parseBoolFormValue(r.PostForm.Get("overwrite"))
		update.Overwrite = &overwrite
	}
	return update, nil
}

// exportName derives the download name from the loaded roster's file name.
func exportName(rosterName, stamp string) string {
	base := strings.TrimSuffix(rosterName, ".xz")
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		base = "roster"
	}
	base += "-checkin"
	if stamp != "" {
		base += "-" + stamp
	}
	return base + ".xlsx"
}

func isJSONRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func wantsJSON(r *http.Request) bool {
	return isJSONRequest(r) || strings.Contains(r.Header.Get("Accept"), "application/json")
}

func parseBoolFormValue(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func renderHTMLTemplate(w http.ResponseWriter, tmpl *template.Template, data pageData) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := w.Write(buf.Bytes())
	return err
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
