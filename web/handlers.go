package web

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/YuminosukeSato/insightml/bundle"
	"github.com/YuminosukeSato/insightml/catalog"
	"github.com/YuminosukeSato/insightml/chart"
	"github.com/YuminosukeSato/insightml/dataset"
	"github.com/YuminosukeSato/insightml/inference"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/pkg/log"
	"github.com/YuminosukeSato/insightml/train"
)

// datasetNames lists the dataset directory. An empty or missing directory
// yields no names and no error.
func (s *Server) datasetNames() ([]dataset.Info, error) {
	infos, err := dataset.List(s.opts.DatasetsDir)
	if errors.Is(err, errors.ErrNoDatasets) {
		return nil, nil
	}
	return infos, err
}

func (s *Server) modelNames(ctx context.Context) ([]string, error) {
	names, err := s.opts.Store.Names(ctx)
	if errors.Is(err, errors.ErrNoModels) {
		return nil, nil
	}
	return names, err
}

func (s *Server) loadDataset(name string) (*dataset.Frame, error) {
	path, err := dataset.Resolve(s.opts.DatasetsDir, name)
	if err != nil {
		return nil, err
	}
	return dataset.Load(path)
}

// ---- home ----

type homeData struct {
	Datasets int
	Models   int
	Runs     []catalog.Run
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	var d homeData
	infos, err := s.datasetNames()
	if err != nil {
		s.fail(w, PageHome, err, view{Data: d})
		return
	}
	d.Datasets = len(infos)
	models, err := s.modelNames(r.Context())
	if err != nil {
		s.fail(w, PageHome, err, view{Data: d})
		return
	}
	d.Models = len(models)
	if s.opts.Catalog != nil {
		runs, err := s.opts.Catalog.Recent(r.Context(), 10)
		if err != nil {
			s.logger.Warn("recent runs unavailable", err)
		}
		d.Runs = runs
	}
	s.render(w, PageHome, http.StatusOK, view{Data: d})
}

// ---- datasets ----

type datasetsData struct {
	Dir      string
	Datasets []dataset.Info
	Selected string
	Preview  *table
	Columns  int
	Missing  []dataset.MissingCount
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	d := datasetsData{Dir: s.opts.DatasetsDir}
	infos, err := s.datasetNames()
	if err != nil {
		s.fail(w, PageDatasets, err, view{Data: d})
		return
	}
	d.Datasets = infos
	v := view{Data: &d}
	if len(infos) == 0 {
		v.Info = "No datasets found in " + s.opts.DatasetsDir + ". Upload a CSV, TSV or XLSX file to get started."
	}

	if name := r.URL.Query().Get("name"); name != "" {
		f, err := s.loadDataset(name)
		if err != nil {
			s.fail(w, PageDatasets, err, v)
			return
		}
		d.Selected = filepath.Base(name)
		d.Preview = tableOf(f, PreviewRows)
		d.Columns = f.NumCols()
		d.Missing = f.MissingCounts()
	}
	s.render(w, PageDatasets, http.StatusOK, v)
}

// saveUpload stores the multipart "file" field in the dataset directory and
// returns its base name.
func (s *Server) saveUpload(r *http.Request) (string, error) {
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return "", errors.NewValidationError("file", "invalid upload: "+err.Error(), nil)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", errors.NewValidationError("file", "no file uploaded", nil)
	}
	defer file.Close()
	path, f, err := dataset.SaveUpload(s.opts.DatasetsDir, header.Filename, file)
	if err != nil {
		return "", err
	}
	s.logger.Info("dataset uploaded", log.PathKey, path, log.SamplesKey, f.NumRows())
	return filepath.Base(path), nil
}

func (s *Server) handleDatasetUpload(w http.ResponseWriter, r *http.Request) {
	name, err := s.saveUpload(r)
	if err != nil {
		infos, _ := s.datasetNames()
		s.fail(w, PageDatasets, err, view{Data: &datasetsData{Dir: s.opts.DatasetsDir, Datasets: infos}})
		return
	}
	http.Redirect(w, r, "/datasets?name="+url.QueryEscape(name), http.StatusSeeOther)
}

// ---- train ----

type trainData struct {
	Datasets    []dataset.Info
	ModelTypes  []string
	Selected    string
	Columns     []string
	Target      string
	ModelType   string
	Categorical []string
	TestSize    float64
	Seed        int64

	Result   *bundle.Description
	Holdout  string
	Cleaning template.HTML
}

func (s *Server) trainData() (*trainData, error) {
	infos, err := s.datasetNames()
	if err != nil {
		return nil, err
	}
	return &trainData{
		Datasets:    infos,
		ModelTypes:  bundle.ModelTypes(),
		ModelType:   s.opts.Train.ModelType,
		Categorical: s.opts.Train.Categorical,
		TestSize:    s.opts.Train.TestSize,
		Seed:        s.opts.Train.Seed,
	}, nil
}

func (s *Server) handleTrainForm(w http.ResponseWriter, r *http.Request) {
	d, err := s.trainData()
	if err != nil {
		s.fail(w, PageTrain, err, view{})
		return
	}
	v := view{Data: d}
	if len(d.Datasets) == 0 {
		v.Info = "No datasets available. Upload one on the Datasets page first."
	}
	if name := r.URL.Query().Get("dataset"); name != "" {
		f, err := s.loadDataset(name)
		if err != nil {
			s.fail(w, PageTrain, err, v)
			return
		}
		d.Selected = filepath.Base(name)
		d.Columns = f.Names()
		if n := len(d.Columns); n > 0 {
			d.Target = d.Columns[n-1]
		}
	}
	s.render(w, PageTrain, http.StatusOK, v)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	d, err := s.trainData()
	if err != nil {
		s.fail(w, PageTrain, err, view{})
		return
	}
	v := view{Data: d}
	if err := r.ParseForm(); err != nil {
		s.fail(w, PageTrain, errors.NewValidationError("form", err.Error(), nil), v)
		return
	}

	cfg := s.opts.Train
	cfg.Dataset = filepath.Base(r.PostForm.Get("dataset"))
	cfg.Target = r.PostForm.Get("target")
	cfg.Name = strings.TrimSpace(r.PostForm.Get("name"))
	if m := r.PostForm.Get("model"); m != "" {
		cfg.ModelType = m
	}
	if cats, ok := r.PostForm["categorical"]; ok {
		cfg.Categorical = nonEmpty(cats)
	}
	if ts := r.PostForm.Get("test_size"); ts != "" {
		size, err := strconv.ParseFloat(ts, 64)
		if err != nil {
			s.fail(w, PageTrain, errors.NewValidationError("test_size", "not a number", ts), v)
			return
		}
		cfg.TestSize = size
	}
	d.Selected, d.Target, d.ModelType, d.Categorical, d.TestSize = cfg.Dataset, cfg.Target, cfg.ModelType, cfg.Categorical, cfg.TestSize

	f, err := s.loadDataset(cfg.Dataset)
	if err != nil {
		s.fail(w, PageTrain, err, v)
		return
	}
	d.Columns = f.Names()

	res, err := train.Train(r.Context(), f, cfg)
	if err != nil {
		s.fail(w, PageTrain, err, v)
		return
	}
	if _, err := s.opts.Store.Save(r.Context(), res.Bundle); err != nil {
		s.fail(w, PageTrain, err, v)
		return
	}
	if s.opts.Catalog != nil {
		if _, err := s.opts.Catalog.Record(r.Context(), catalog.RunFor(res.Bundle)); err != nil {
			s.logger.Warn("training run not recorded", err)
		}
	}

	desc := res.Bundle.Describe()
	d.Result = &desc
	d.Holdout = res.Bundle.TrainMetrics.Report
	d.Cleaning = markdownHTML(res.Cleaning.Markdown())
	v.Info = fmt.Sprintf("Model %q saved.", res.Bundle.Name)
	s.render(w, PageTrain, http.StatusOK, v)
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ---- predict ----

type predictData struct {
	Models   []string
	Datasets []dataset.Info
	Model    string
	Dataset  string

	Cleaning    template.HTML
	Processed   *table
	Missing     []dataset.MissingCount
	Predictions *table
	Counts      map[string]int
	Classes     []string
}

func (s *Server) predictData(ctx context.Context, q url.Values) (*predictData, error) {
	models, err := s.modelNames(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := s.datasetNames()
	if err != nil {
		return nil, err
	}
	return &predictData{Models: models, Datasets: infos, Model: q.Get("model"), Dataset: q.Get("dataset")}, nil
}

// predict loads the bundle and dataset named in d and runs the prediction.
func (s *Server) predict(ctx context.Context, d *predictData) (*inference.Prediction, error) {
	b, err := s.opts.Store.Load(ctx, d.Model)
	if err != nil {
		return nil, err
	}
	f, err := s.loadDataset(d.Dataset)
	if err != nil {
		return nil, err
	}
	return inference.Predict(b, f)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	d, err := s.predictData(r.Context(), r.URL.Query())
	if err != nil {
		s.fail(w, PagePredict, err, view{})
		return
	}
	v := view{Data: d}
	if len(d.Models) == 0 {
		v.Info = "No trained models found. Train one on the Train page first."
	}
	if d.Model == "" || d.Dataset == "" {
		s.render(w, PagePredict, http.StatusOK, v)
		return
	}

	p, err := s.predict(r.Context(), d)
	if err != nil {
		s.fail(w, PagePredict, err, v)
		return
	}
	out, err := p.Frame()
	if err != nil {
		s.fail(w, PagePredict, err, v)
		return
	}
	d.Cleaning = markdownHTML(p.Cleaning.Markdown())
	d.Processed = tableOf(p.Cleaned, PreviewRows)
	d.Missing = p.Cleaned.MissingCounts()
	d.Predictions = tableOf(out, 20)
	d.Counts = p.Counts()
	d.Classes = p.ClassNames
	s.render(w, PagePredict, http.StatusOK, v)
}

func (s *Server) handlePredictUpload(w http.ResponseWriter, r *http.Request) {
	name, err := s.saveUpload(r)
	model := r.FormValue("model")
	if err != nil {
		d, derr := s.predictData(r.Context(), url.Values{"model": {model}})
		if derr != nil {
			err = derr
		}
		s.fail(w, PagePredict, err, view{Data: d})
		return
	}
	q := url.Values{"model": {model}, "dataset": {name}}
	http.Redirect(w, r, "/predict?"+q.Encode(), http.StatusSeeOther)
}

func (s *Server) handlePredictDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d := &predictData{Model: q.Get("model"), Dataset: q.Get("dataset")}
	format := dataset.Format(q.Get("format"))
	if format == "" {
		format = dataset.FormatCSV
	}
	if format != dataset.FormatCSV && format != dataset.FormatXLSX {
		http.Error(w, "format must be csv or xlsx", http.StatusBadRequest)
		return
	}

	p, err := s.predict(r.Context(), d)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	out, err := p.Frame()
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	data, err := dataset.Encode(out, format)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	base := strings.TrimSuffix(filepath.Base(d.Dataset), filepath.Ext(d.Dataset))
	filename := base + "_predictions." + string(format)
	contentType := "text/csv; charset=utf-8"
	if format == dataset.FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(data)
}

// ---- visualize ----

type visualizeData struct {
	Models   []string
	Datasets []dataset.Info
	Model    string
	Dataset  string

	Description *bundle.Description
	Rows        int
	Columns     int
	Report      *inference.Report
	Charts      []chartView
}

func (s *Server) explain(ctx context.Context, model, data string) (*bundle.Bundle, *inference.Report, error) {
	b, err := s.opts.Store.Load(ctx, model)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.loadDataset(data)
	if err != nil {
		return nil, nil, err
	}
	return b, inference.Explain(ctx, b, f, s.opts.Explain), nil
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d := &visualizeData{Model: q.Get("model"), Dataset: q.Get("dataset")}
	var err error
	if d.Models, err = s.modelNames(r.Context()); err != nil {
		s.fail(w, PageVisualize, err, view{Data: d})
		return
	}
	if d.Datasets, err = s.datasetNames(); err != nil {
		s.fail(w, PageVisualize, err, view{Data: d})
		return
	}
	v := view{Data: d}
	switch {
	case len(d.Models) == 0:
		v.Info = "No trained models found. Train one on the Train page first."
	case len(d.Datasets) == 0:
		v.Info = "No datasets available. Upload one on the Datasets page first."
	}
	if v.Info != "" || d.Model == "" || d.Dataset == "" {
		s.render(w, PageVisualize, http.StatusOK, v)
		return
	}

	b, report, err := s.explain(r.Context(), d.Model, d.Dataset)
	if err != nil {
		s.fail(w, PageVisualize, err, v)
		return
	}
	desc := b.Describe()
	d.Description = &desc
	d.Rows, d.Columns = report.Rows, report.Columns
	d.Report = report
	for _, kind := range chart.Kinds() {
		cv := chartView{Title: chart.Title(kind), Kind: kind}
		png, err := chart.Render(report, kind)
		if err != nil {
			cv.Message = err.Error()
		} else {
			cv.URI = pngURI(png)
		}
		d.Charts = append(d.Charts, cv)
	}
	s.render(w, PageVisualize, http.StatusOK, v)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if chart.Title(kind) == "" {
		http.Error(w, "unknown chart "+kind, http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	_, report, err := s.explain(r.Context(), q.Get("model"), q.Get("dataset"))
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	png, err := chart.Render(report, kind)
	if err != nil {
		var ue *chart.UnavailableError
		if errors.As(err, &ue) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}
