// Package web serves the InsightML dashboard: dataset loading, training,
// prediction and model visualisation pages rendered with html/template.
package web

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/YuminosukeSato/insightml/bundle"
	"github.com/YuminosukeSato/insightml/catalog"
	"github.com/YuminosukeSato/insightml/inference"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/pkg/log"
	"github.com/YuminosukeSato/insightml/train"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page identifies a dashboard page. It is passed explicitly to every render.
type Page string

const (
	PageHome      Page = "home"
	PageDatasets  Page = "datasets"
	PageTrain     Page = "train"
	PagePredict   Page = "predict"
	PageVisualize Page = "visualize"
)

var pages = []Page{PageHome, PageDatasets, PageTrain, PagePredict, PageVisualize}

// MaxUploadBytes bounds multipart uploads.
const MaxUploadBytes = 32 << 20

// Options configure a Server.
type Options struct {
	DatasetsDir string
	Store       *bundle.Store
	// Catalog is optional; without it training runs are not recorded.
	Catalog *catalog.Catalog
	// Train holds the defaults for the training form.
	Train   train.Config
	Explain inference.Options
	Logger  log.Logger
}

// Server is the dashboard HTTP handler.
type Server struct {
	opts   Options
	router chi.Router
	pages  map[Page]*template.Template
	logger log.Logger
}

// New parses the templates and builds the router.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.NewValidationError("store", "must not be nil", nil)
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLoggerWithName("web")
	}
	s := &Server{opts: opts, logger: opts.Logger, pages: make(map[Page]*template.Template)}

	base, err := template.New("layout").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse layout")
	}
	for _, p := range pages {
		t, err := template.Must(base.Clone()).ParseFS(templateFS, "templates/"+string(p)+".html")
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s template", p)
		}
		s.pages[p] = t
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/", s.handleHome)
	r.Get("/datasets", s.handleDatasets)
	r.Post("/datasets", s.handleDatasetUpload)
	r.Get("/train", s.handleTrainForm)
	r.Post("/train", s.handleTrain)
	r.Get("/predict", s.handlePredict)
	r.Post("/predict", s.handlePredictUpload)
	r.Get("/predict/download", s.handlePredictDownload)
	r.Get("/visualize", s.handleVisualize)
	r.Get("/charts/{kind}", s.handleChart)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("dashboard listening", "addr", addr)

	select {
	case err := <-errc:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// view is what every page template receives.
type view struct {
	Page  Page
	Title string
	Error string
	Info  string
	Data  interface{}
}

// render executes the page into a buffer first so a template error never
// leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, page Page, status int, v view) {
	v.Page = page
	if v.Title == "" {
		v.Title = titles[page]
	}
	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", v); err != nil {
		s.logger.Error("template failed", err, "page", string(page))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// fail renders page with err as the message and a status derived from err.
func (s *Server) fail(w http.ResponseWriter, page Page, err error, v view) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", err, "page", string(page))
	}
	v.Error = err.Error()
	s.render(w, page, status, v)
}

var titles = map[Page]string{
	PageHome:      "InsightML",
	PageDatasets:  "Datasets",
	PageTrain:     "Train a model",
	PagePredict:   "Upload & predict",
	PageVisualize: "Visualization",
}

func statusOf(err error) int {
	var (
		mf *errors.MissingFeatureError
		cn *errors.ColumnNotFoundError
		ve *errors.ValidationError
		va *errors.ValueError
		dm *errors.DimensionError
	)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &mf), errors.As(err, &cn):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ve), errors.As(err, &va), errors.As(err, &dm), errors.Is(err, errors.ErrEmptyData):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request",
				log.HTTPMethodKey, r.Method,
				log.HTTPPathKey, r.URL.Path,
				log.HTTPStatusKey, status,
				log.RequestIDKey, middleware.GetReqID(r.Context()),
				log.DurationMsKey, time.Since(start).Milliseconds(),
			)
		})
	}
}
