package demoserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/raysh454/auditai/internal/logging"
)

// ClearanceCookie is the cookie that lets a client past the WAF challenge.
const ClearanceCookie = "demo_clearance"

var (
	layoutTmpl  = template.Must(template.New("layout").Parse(layoutHTML))
	controlTmpl = template.Must(template.New("control").Parse(controlPanelHTML))
	staticJS    = "// Demo static file\nconsole.log(\"loaded\");\n"
)

// DemoServer is a deliberately weak web site to point scans at. Each page
// has its own hardening level and a WAF can be switched on at runtime.
type DemoServer struct {
	cfg    Config
	logger logging.Logger
	pages  map[string]PageDefinition
	order  []string

	mu     sync.RWMutex
	levels map[string]Level // path -> current level
	waf    bool
}

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config, logger logging.Logger) *DemoServer {
	if !cfg.Level.Valid() {
		cfg.Level = LevelWeak
	}
	s := &DemoServer{
		cfg:    cfg,
		logger: logger.With(logging.Field{Key: "component", Value: "demoserver"}),
		pages:  make(map[string]PageDefinition),
		levels: make(map[string]Level),
		waf:    cfg.WAF,
	}
	for _, p := range GetAllPages() {
		s.pages[p.Path] = p
		s.levels[p.Path] = cfg.Level
		s.order = append(s.order, p.Path)
	}
	return s
}

// Handler returns the router serving the site and its control panel.
func (s *DemoServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.wafMiddleware)
		for _, path := range s.order {
			r.Get(path, s.pageHandler(path))
		}
		r.Post("/login", s.formHandler)
		r.Post("/admin", s.formHandler)
		r.Post("/contact", s.formHandler)
		r.Get("/static/*", s.staticHandler)
		for path := range leftoverFiles {
			r.Get(path, s.leftoverHandler(path))
		}
	})

	r.Get("/demo/control", s.controlPanelHandler)
	r.Get("/demo/state", s.stateHandler)
	r.Get("/demo/clearance", s.clearanceHandler)
	r.Post("/demo/set-level", s.setLevelHandler)
	r.Post("/demo/waf", s.setWAFHandler)
	r.Post("/demo/reset", s.resetHandler)
	return r
}

// Run serves on the configured port until ctx is done.
func (s *DemoServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("demo server listening",
			logging.Field{Key: "addr", Value: "http://localhost" + srv.Addr},
			logging.Field{Key: "control_panel", Value: "http://localhost" + srv.Addr + "/demo/control"},
			logging.Field{Key: "waf", Value: s.WAF()})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Level returns the current level of the page at path.
func (s *DemoServer) Level(path string) (Level, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.levels[path]
	return l, ok
}

// SetLevel changes the level of one page, or of every page when path is
// empty.
func (s *DemoServer) SetLevel(path string, level Level) error {
	if !level.Valid() {
		return fmt.Errorf("invalid level %d", int(level))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		for p := range s.levels {
			s.levels[p] = level
		}
		return nil
	}
	if _, ok := s.pages[path]; !ok {
		return fmt.Errorf("unknown page %q", path)
	}
	s.levels[path] = level
	return nil
}

func (s *DemoServer) WAF() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waf
}

func (s *DemoServer) SetWAF(on bool) {
	s.mu.Lock()
	s.waf = on
	s.mu.Unlock()
}

// wafMiddleware answers every request lacking the clearance cookie with a
// challenge page, the way hosted bot protections do.
func (s *DemoServer) wafMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.WAF() {
			next.ServeHTTP(w, r)
			return
		}
		if c, err := r.Cookie(ClearanceCookie); err == nil && c.Value != "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Cf-Mitigated", "challenge")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(challengeHTML))
	})
}

// pageHandler returns a handler for a specific page path.
func (s *DemoServer) pageHandler(path string) http.HandlerFunc {
	page := s.pages[path]
	return func(w http.ResponseWriter, r *http.Request) {
		level, _ := s.Level(path)
		if page.LoginRequired && level == LevelHardened {
			http.Redirect(w, r, "/login?next="+path, http.StatusFound)
			return
		}

		for k, v := range securityHeaders(level) {
			w.Header().Set(k, v)
		}
		if level == LevelWeak {
			// Reflect whatever origin asks, credentials included.
			if origin := r.Header.Get("Origin"); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}
		if page.Cookies != nil {
			for _, c := range page.Cookies(level) {
				http.SetCookie(w, &http.Cookie{
					Name:     c.Name,
					Value:    c.Value,
					Path:     c.Path,
					HttpOnly: c.HttpOnly,
					Secure:   c.Secure,
					SameSite: c.SameSite,
				})
			}
		}

		data := struct {
			Page  PageDefinition
			Body  template.HTML
			Level Level
			Nav   []string
		}{
			Page:  page,
			Body:  template.HTML(page.Body), // #nosec G203 static page content
			Level: level,
			Nav:   s.order,
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := layoutTmpl.Execute(w, data); err != nil {
			s.logger.Warn("rendering page", logging.Field{Key: "path", Value: path}, logging.Err(err))
		}
	}
}

// formHandler accepts any form post and pretends it worked.
func (s *DemoServer) formHandler(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.logger.Debug("form submitted", logging.Field{Key: "path", Value: r.URL.Path})
	http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
}

// leftoverHandler serves one of the leftover files according to the level
// of the home page.
func (s *DemoServer) leftoverHandler(path string) http.HandlerFunc {
	body := leftoverFiles[path]
	return func(w http.ResponseWriter, r *http.Request) {
		level, _ := s.Level("/")
		switch level {
		case LevelWeak:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(body))
		case LevelPartial:
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}
}

// staticHandler serves placeholder static files.
func (s *DemoServer) staticHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	_, _ = w.Write([]byte(staticJS))
}

// clearanceHandler hands out the cookie that passes the WAF.
func (s *DemoServer) clearanceHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     ClearanceCookie,
		Value:    strconv.FormatInt(time.Now().Unix(), 36),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// PageState is one entry of the /demo/state answer.
type PageState struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	Level       Level  `json:"level"`
	LevelName   string `json:"level_name"`
}

// State is the current configuration of the site.
type State struct {
	WAF   bool        `json:"waf"`
	Pages []PageState `json:"pages"`
}

func (s *DemoServer) state() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{WAF: s.waf}
	for _, path := range s.order {
		l := s.levels[path]
		st.Pages = append(st.Pages, PageState{
			Path:        path,
			Description: s.pages[path].Description,
			Level:       l,
			LevelName:   l.String(),
		})
	}
	sort.Slice(st.Pages, func(i, j int) bool { return st.Pages[i].Path < st.Pages[j].Path })
	return st
}

func (s *DemoServer) stateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

// setLevelHandler sets the level of one page, or all pages when path is
// omitted.
func (s *DemoServer) setLevelHandler(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(r.FormValue("level"))
	if err != nil {
		http.Error(w, "Invalid level", http.StatusBadRequest)
		return
	}
	path := r.FormValue("path")
	if err := s.SetLevel(path, Level(level)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Info("level changed",
		logging.Field{Key: "path", Value: path},
		logging.Field{Key: "level", Value: Level(level).String()})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"path":    path,
		"level":   level,
	})
}

func (s *DemoServer) setWAFHandler(w http.ResponseWriter, r *http.Request) {
	on, err := strconv.ParseBool(r.FormValue("enabled"))
	if err != nil {
		http.Error(w, "Invalid enabled flag", http.StatusBadRequest)
		return
	}
	s.SetWAF(on)
	s.logger.Info("waf toggled", logging.Field{Key: "enabled", Value: on})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "waf": on})
}

// resetHandler restores the levels and WAF flag the server started with.
func (s *DemoServer) resetHandler(w http.ResponseWriter, r *http.Request) {
	_ = s.SetLevel("", s.cfg.Level)
	s.SetWAF(s.cfg.WAF)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "levels and waf reset",
	})
}

// controlPanelHandler serves the control panel for level management.
func (s *DemoServer) controlPanelHandler(w http.ResponseWriter, r *http.Request) {
	data := struct {
		State  State
		Levels []Level
	}{
		State:  s.state(),
		Levels: []Level{LevelWeak, LevelPartial, LevelHardened},
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := controlTmpl.Execute(w, data); err != nil {
		s.logger.Warn("rendering control panel", logging.Err(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const layoutHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Demo Shop - {{.Page.Title}}</title>
</head>
<body>
    <nav class="main-nav">
        {{range .Nav}}<a href="{{.}}">{{.}}</a> {{end}}
    </nav>
    <main>
{{.Body}}
    </main>
    <footer>hardening: {{.Level}}</footer>
</body>
</html>`

const challengeHTML = `<!DOCTYPE html>
<html>
<head><title>Just a moment...</title></head>
<body>
    <h1>Checking your browser before accessing the site.</h1>
    <p>Visit <a href="/demo/clearance">/demo/clearance</a> to continue.</p>
</body>
</html>`

const controlPanelHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Demo Server Control Panel</title>
    <style>
        body { font-family: system-ui, -apple-system, sans-serif; max-width: 960px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        h1 { color: #333; border-bottom: 2px solid #007bff; padding-bottom: 10px; }
        .page-card { background: white; border-radius: 8px; padding: 16px; margin: 12px 0; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .page-path { font-weight: bold; color: #007bff; }
        .level-btn { padding: 6px 14px; border: none; border-radius: 4px; cursor: pointer; }
        .level-btn.active { background: #007bff; color: white; }
        .waf { background: #fff3cd; padding: 16px; border-radius: 8px; }
    </style>
</head>
<body>
    <h1>Demo Server Control Panel</h1>

    <div class="waf">
        WAF is <strong>{{if .State.WAF}}on{{else}}off{{end}}</strong>
        <button onclick="post('/demo/waf', 'enabled={{if .State.WAF}}false{{else}}true{{end}}')">Toggle</button>
        <button onclick="post('/demo/reset', '')">Reset</button>
    </div>

    {{range $p := .State.Pages}}
    <div class="page-card">
        <a class="page-path" href="{{$p.Path}}" target="_blank">{{$p.Path}}</a>
        <div>{{$p.Description}}</div>
        {{range $l := $.Levels}}
        <button class="level-btn {{if eq $p.Level $l}}active{{end}}"
                onclick="post('/demo/set-level', 'path={{$p.Path}}&level={{printf "%d" $l}}')">{{$l}}</button>
        {{end}}
    </div>
    {{end}}

    <script>
        function post(url, body) {
            fetch(url, {
                method: 'POST',
                headers: {'Content-Type': 'application/x-www-form-urlencoded'},
                body: body
            }).then(() => location.reload());
        }
    </script>
</body>
</html>`
