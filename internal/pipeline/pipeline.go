// Package pipeline sequences the feature-engineering stages: dataset
// load and schema alignment, label mapping, the categorical
// probability encoder, dtype normalization, outlier removal and
// scaling. Training fits and persists every statistical artifact;
// scoring replays them so a single record sees exactly the transforms
// the corpus was trained with.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"domainsift/internal/borders"
	"domainsift/internal/config"
	"domainsift/internal/dataset"
	"domainsift/internal/labels"
	"domainsift/internal/outliers"
	"domainsift/internal/scaling"
)

// MissingSentinel replaces missing numeric values in the emitted
// matrix.
const MissingSentinel = -1

var (
	// ErrNoLabelColumn means a training table carries no label column.
	ErrNoLabelColumn = errors.New("pipeline: no label column found")
	// ErrNoDatasets means batch processing was requested with no
	// usable dataset paths.
	ErrNoDatasets = errors.New("pipeline: no datasets found")
	// ErrArtifactMissing means scoring needs an artifact that no
	// training run has persisted yet.
	ErrArtifactMissing = errors.New("pipeline: required artifact missing, train first")
)

// splitSeed fixes the stratified train/test partition of the
// categorical encoder, independent of the row-shuffle seed.
const splitSeed = 42

// Runner owns one pipeline run's artifacts and logging.
type Runner struct {
	cfg   config.Config
	store *borders.Store
	log   *zap.Logger
}

// New returns a runner over the given artifact store.
func New(cfg config.Config, store *borders.Store, log *zap.Logger) *Runner {
	return &Runner{cfg: cfg, store: store, log: log}
}

// TrainInput describes a batch training run.
type TrainInput struct {
	BenignPath string
	MalignPath string
	Policy     labels.Policy
	Model      string // downstream model name, drives the scaler recommendation
	Scale      bool
	Families   labels.FamilyTable
}

// Result is the pipeline output: the numeric feature matrix, the
// parallel integer label vector, the surviving feature names and the
// class map used (empty when scoring, since no labels are present).
type Result struct {
	Features     *mat.Dense
	Labels       []int
	FeatureNames []string
	ClassMap     map[string]int
	DatasetName  string
}

// Train runs the full batch pipeline and persists the fitted
// artifacts. Either the complete result is produced or the run aborts
// with nothing emitted.
func (r *Runner) Train(ctx context.Context, in TrainInput) (*Result, error) {
	runID := uuid.NewString()
	log := r.log.With(zap.String("run_id", runID), zap.String("policy", in.Policy.String()))

	combined, err := r.loadTables(ctx, in, log)
	if err != nil {
		return nil, err
	}
	log.Info("combined dataset loaded", zap.Int("rows", combined.Len()), zap.Int("columns", combined.NumCols()))

	seed := r.cfg.ShuffleSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	combined.Shuffle(rand.New(rand.NewSource(seed)))
	log.Debug("rows shuffled", zap.Int64("seed", seed))

	labelCol, ok := combined.Col(dataset.LabelColumn)
	if !ok || labelCol.Kind != dataset.String {
		return nil, ErrNoLabelColumn
	}
	rawLabels := append([]string(nil), labelCol.Strs...)

	classMap := labels.BuildClassMap(rawLabels, in.Policy, in.Families)
	log.Info("class map generated", zap.Int("classes", len(classMap)))
	if in.Policy == labels.Multiclass {
		for label, n := range labels.Counts(rawLabels) {
			log.Debug("class count", zap.String("label", label), zap.Int("rows", n))
		}
	}

	if in.Policy == labels.Generic {
		if err := r.trainCategorical(combined, rawLabels, log); err != nil {
			return nil, err
		}
	}

	encoded, unmapped := labels.Encode(rawLabels, classMap)
	for _, l := range unmapped {
		log.Warn("label not covered by policy, assigning sentinel", zap.String("label", l))
	}

	features := combined
	features.Drop(dataset.LabelColumn)
	if features.NumCols() > 0 {
		// The first remaining column is the residual identifier.
		features.DropAt(0)
	}
	features.NormalizeTypes()
	features.Impute(MissingSentinel)

	bounds := outliers.Fit(features, r.cfg.OutlierMultiplier)
	payload, err := bounds.Encode()
	if err != nil {
		return nil, err
	}
	if err := r.store.Save(borders.BoundsArtifact, payload); err != nil {
		return nil, err
	}
	encoded, removed, err := outliers.Apply(features, encoded, bounds)
	if err != nil {
		return nil, err
	}
	for col, n := range removed {
		log.Info("outliers removed", zap.String("column", col), zap.Int("rows", n))
	}

	if in.Scale {
		if err := r.fitScaler(features, in.Model, log); err != nil {
			return nil, err
		}
	}

	matrix, names, err := features.Matrix()
	if err != nil {
		return nil, err
	}
	return &Result{
		Features:     matrix,
		Labels:       encoded,
		FeatureNames: names,
		ClassMap:     classMap,
		DatasetName:  datasetName(in.MalignPath),
	}, nil
}

// loadTables loads and combines the source tables for the policy:
// multiclass reads malign only, everything else loads benign and
// malign concurrently and aligns the benign schema to the malign one.
func (r *Runner) loadTables(ctx context.Context, in TrainInput, log *zap.Logger) (*dataset.Table, error) {
	if in.MalignPath == "" {
		return nil, ErrNoDatasets
	}

	if in.Policy == labels.Multiclass {
		log.Info("loading malign dataset", zap.String("path", in.MalignPath))
		malign, err := dataset.ReadCSV(in.MalignPath)
		if err != nil {
			return nil, err
		}
		malign = malign.SelectLexical()
		malign.DropNonTraining()
		return malign, nil
	}

	var benign, malign *dataset.Table
	var g errgroup.Group
	if in.BenignPath != "" {
		g.Go(func() error {
			log.Info("loading benign dataset", zap.String("path", in.BenignPath))
			t, err := dataset.ReadCSV(in.BenignPath)
			if err == nil {
				benign = t
			}
			return err
		})
	}
	g.Go(func() error {
		log.Info("loading malign dataset", zap.String("path", in.MalignPath))
		t, err := dataset.ReadCSV(in.MalignPath)
		if err == nil {
			malign = t
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err // caller gave up while the files were loading
	}

	if in.Policy == labels.Binary {
		malign = malign.SelectLexical()
		if benign != nil {
			benign = benign.SelectLexical()
		}
	}
	malign.DropNonTraining()
	if benign == nil {
		return malign, nil
	}
	benign.DropNonTraining()

	combined, err := benign.CastTo(malign)
	if err != nil {
		return nil, err
	}
	if err := combined.Concat(malign); err != nil {
		return nil, err
	}
	return combined, nil
}

func (r *Runner) fitScaler(features *dataset.Table, model string, log *zap.Logger) error {
	kind := scaling.Recommend(features, strings.ToLower(model))
	log.Info("applying scaling", zap.String("scaler", string(kind)), zap.String("model", model))
	scaler, err := scaling.Fit(kind, features)
	if err != nil {
		return err
	}
	payload, err := scaler.Encode()
	if err != nil {
		return err
	}
	if err := r.store.Save(borders.ScalerArtifact, payload); err != nil {
		return err
	}
	return scaler.Transform(features)
}

// datasetName derives the emitted dataset name from the malign source
// file and the run date.
func datasetName(malignPath string) string {
	date := time.Now().Format("2006-01-02")
	base := filepath.Base(malignPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(base, "_")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return fmt.Sprintf("dataset_%s_%s.csv", strings.Join(parts, ""), date)
}
