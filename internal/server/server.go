package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/activelabel/internal/database"
	"github.com/TobiSchelling/activelabel/internal/experiment"
	"github.com/TobiSchelling/activelabel/internal/export"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP server for browsing experiment runs.
type Server struct {
	db     *database.DB
	pages  map[string]*template.Template
	mux    *http.ServeMux
	logger *zap.Logger
}

// New creates a new Server.
func New(db *database.DB, logger *zap.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"auc":      formatAUC,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	pageNames := []string{"index.html", "run.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, pages: pages, mux: http.NewServeMux(), logger: logger}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/runs/", s.handleRun)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	runs, err := s.db.GetAllRuns()
	if err != nil {
		s.logger.Error("Listing runs failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, err := s.db.GetStats()
	if err != nil {
		s.logger.Error("Reading stats failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Runs":  runs,
		"Stats": stats,
	})
}

// handleRun serves /runs/{id} and /runs/{id}/results.csv.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/runs/")
	runID, suffix, _ := strings.Cut(path, "/")
	if runID == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	run, err := s.db.GetRun(runID)
	if err != nil {
		s.logger.Error("Reading run failed", zap.String("run", runID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}
	res, err := s.loadResult(runID)
	if err != nil {
		s.logger.Error("Reading results failed", zap.String("run", runID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	switch suffix {
	case "":
		table := res.Table()
		s.render(w, "run.html", map[string]any{
			"Run":        run,
			"Strategies": res.Strategies,
			"Table":      table,
			"Summary":    summaryMarkdown(res.Strategies, table),
		})
	case "results.csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", runID+"_results.csv"))
		if err := export.WriteCSV(w, res.Strategies, res.Table()); err != nil {
			s.logger.Error("Writing CSV failed", zap.String("run", runID), zap.Error(err))
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) loadResult(runID string) (*experiment.Result, error) {
	batches, err := s.db.GetBatchResults(runID)
	if err != nil {
		return nil, err
	}
	return experiment.FromBatchResults(batches), nil
}

// summaryMarkdown compares the strategies at the largest shared training
// size.
func summaryMarkdown(strategies []string, table []experiment.Row) string {
	if len(table) == 0 {
		return "_No rounds recorded for this run._"
	}

	var b strings.Builder
	last := table[len(table)-1]
	fmt.Fprintf(&b, "After **%d** training rows:\n\n", last.TrainSize)

	best, bestAUC := "", -1.0
	for _, s := range strategies {
		auc, ok := last.AUC[s]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- `%s`: %s\n", s, formatAUC(auc))
		if auc > bestAUC {
			best, bestAUC = s, auc
		}
	}
	if best != "" && len(strategies) > 1 {
		fmt.Fprintf(&b, "\n**%s** sampling scores highest.\n", best)
	}
	return b.String()
}

func formatAUC(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("Template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.logger.Error("Rendering template failed", zap.String("template", name), zap.Error(err))
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, port int, logger *zap.Logger) error {
	srv, err := New(db, logger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	logger.Info("Server listening", zap.String("url", "http://"+addr))
	return http.ListenAndServe(addr, srv.Handler())
}
