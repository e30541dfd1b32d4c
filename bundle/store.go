package bundle

import (
	"context"
	"encoding/gob"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/pkg/log"
)

// Info describes a saved bundle file without decoding it.
type Info struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Description is bundle metadata without the model, for listings and YAML output.
type Description struct {
	ID                  string                 `yaml:"id" json:"id"`
	Name                string                 `yaml:"name" json:"name"`
	ModelType           string                 `yaml:"model_type" json:"model_type"`
	Dataset             string                 `yaml:"dataset,omitempty" json:"dataset,omitempty"`
	TargetColumn        string                 `yaml:"target_column" json:"target_column"`
	FeatureNames        []string               `yaml:"feature_names" json:"feature_names"`
	CategoricalFeatures []string               `yaml:"categorical_features,omitempty" json:"categorical_features,omitempty"`
	Classes             []string               `yaml:"classes" json:"classes"`
	Params              map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
	Accuracy            float64                `yaml:"holdout_accuracy" json:"holdout_accuracy"`
	AUC                 *float64               `yaml:"holdout_auc,omitempty" json:"holdout_auc,omitempty"`
	LogLoss             *float64               `yaml:"holdout_log_loss,omitempty" json:"holdout_log_loss,omitempty"`
	TrainSamples        int                    `yaml:"train_samples" json:"train_samples"`
	TestSamples         int                    `yaml:"test_samples" json:"test_samples"`
	Scaled              bool                   `yaml:"scaled" json:"scaled"`
	CreatedAt           time.Time              `yaml:"created_at" json:"created_at"`
}

// Describe summarises b.
func (b *Bundle) Describe() Description {
	d := Description{
		ID:                  b.ID,
		Name:                b.Name,
		ModelType:           b.ModelType,
		Dataset:             b.Dataset,
		TargetColumn:        b.TargetColumn,
		FeatureNames:        append([]string(nil), b.FeatureNames...),
		CategoricalFeatures: append([]string(nil), b.CategoricalFeatures...),
		Classes:             b.ClassNames(),
		Params:              b.Params,
		Accuracy:            b.TrainMetrics.Accuracy,
		TrainSamples:        b.TrainMetrics.TrainSamples,
		TestSamples:         b.TrainMetrics.TestSamples,
		Scaled:              b.Scaler != nil,
		CreatedAt:           b.CreatedAt,
	}
	if b.TrainMetrics.HasAUC {
		auc, ll := b.TrainMetrics.AUC, b.TrainMetrics.LogLoss
		d.AUC, d.LogLoss = &auc, &ll
	}
	return d
}

// Store saves and loads bundles in a directory, one file per bundle.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger log.Logger
}

// NewStore returns a store rooted at dir. The directory is created on first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir, logger: log.GetLoggerWithName("bundle.store")}
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path for a bundle name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+Extension)
}

// Save validates b and writes it atomically: the bundle is encoded into a
// temporary file in the same directory, synced, closed and renamed over the
// final path. Readers see either the previous bundle or the new one.
func (s *Store) Save(ctx context.Context, b *Bundle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := b.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create model directory %s", s.dir)
	}
	final := s.Path(b.Name)
	tmp, err := os.CreateTemp(s.dir, b.Name+Extension+".tmp-*")
	if err != nil {
		return "", errors.Wrap(err, "create temporary bundle file")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := gob.NewEncoder(tmp).Encode(b); err != nil {
		return "", errors.Wrapf(err, "encode bundle %q", b.Name)
	}
	if err := tmp.Sync(); err != nil {
		return "", errors.Wrap(err, "sync bundle file")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "close bundle file")
	}
	if err := os.Rename(tmpName, final); err != nil {
		return "", errors.Wrapf(err, "rename bundle into %s", final)
	}
	committed = true

	s.logger.Info("bundle saved",
		log.BundleNameKey, b.Name,
		log.BundleIDKey, b.ID,
		log.ModelTypeKey, b.ModelType,
		log.PathKey, final,
	)
	return final, nil
}

// Load reads the named bundle. A missing file yields ErrBundleNotFound; an
// undecodable or invalid one yields CorruptBundleError.
func (s *Store) Load(ctx context.Context, name string) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	path := s.Path(name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewBundleNotFoundError(name)
		}
		return nil, errors.Wrapf(err, "open bundle %s", path)
	}
	defer f.Close()

	var b Bundle
	if err := gob.NewDecoder(f).Decode(&b); err != nil {
		return nil, errors.NewCorruptBundleError(path, err)
	}
	if err := b.Validate(); err != nil {
		return nil, errors.NewCorruptBundleError(path, err)
	}
	s.logger.Debug("bundle loaded", log.BundleNameKey, name, log.PathKey, path)
	return &b, nil
}

// List returns the saved bundles sorted by name. A missing directory is an
// empty store, not an error.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read model directory %s", s.dir)
	}
	var out []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{
			Name:    strings.TrimSuffix(e.Name(), Extension),
			Path:    filepath.Join(s.dir, e.Name()),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Names returns bundle names, or ErrNoModels when the store is empty.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, errors.ErrNoModels
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names, nil
}

// Describe loads the named bundle and returns its metadata.
func (s *Store) Describe(ctx context.Context, name string) (Description, error) {
	b, err := s.Load(ctx, name)
	if err != nil {
		return Description{}, err
	}
	return b.Describe(), nil
}

func formatCode(code float64) string {
	return strconv.FormatFloat(code, 'f', -1, 64)
}
