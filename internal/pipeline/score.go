package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"domainsift/internal/borders"
	"domainsift/internal/dataset"
	"domainsift/internal/dtree"
	"domainsift/internal/labels"
	"domainsift/internal/outliers"
	"domainsift/internal/scaling"
)

// ScoreInput describes a single-record scoring run. The record is
// unlabeled; every stateful stage runs in load-and-replay form.
type ScoreInput struct {
	Record map[string]any
	Policy labels.Policy
	Model  string
	Scale  bool
}

// Score pushes one inbound record through the same stage sequence as
// training, replaying the persisted artifacts. A record outside the
// fitted outlier bounds is rejected with outliers.ErrOutOfBounds
// rather than silently dropped.
func (r *Runner) Score(ctx context.Context, in ScoreInput) (*Result, error) {
	log := r.log.With(zap.String("policy", in.Policy.String()))

	tbl, err := dataset.FromRecord(in.Record)
	if err != nil {
		return nil, err
	}
	log.Info("single-record processing", zap.Int("rows", tbl.Len()))

	if in.Policy.LexicalOnly() {
		tbl = tbl.SelectLexical()
	}
	tbl.DropNonTraining()

	if in.Policy == labels.Generic {
		if err := r.scoreCategorical(tbl, log); err != nil {
			return nil, err
		}
	}

	tbl.Drop(dataset.LabelColumn)
	if tbl.NumCols() > 0 {
		tbl.DropAt(0)
	}
	tbl.NormalizeTypes()
	tbl.Impute(MissingSentinel)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, ok, err := r.store.Load(borders.BoundsArtifact)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, borders.BoundsArtifact)
	}
	bounds, err := outliers.Decode(payload)
	if err != nil {
		return nil, err
	}
	if err := outliers.Check(tbl, bounds); err != nil {
		return nil, err
	}

	if in.Scale {
		payload, ok, err := r.store.Load(borders.ScalerArtifact)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, borders.ScalerArtifact)
		}
		scaler, err := scaling.Decode(payload)
		if err != nil {
			return nil, err
		}
		log.Info("replaying scaler", zap.String("scaler", string(scaler.Kind)))
		if err := scaler.Transform(tbl); err != nil {
			return nil, err
		}
	}

	matrix, names, err := tbl.Matrix()
	if err != nil {
		return nil, err
	}
	return &Result{
		Features:     matrix,
		FeatureNames: names,
		ClassMap:     map[string]int{},
		DatasetName:  fmt.Sprintf("single_record_dataset_%s", time.Now().Format("2006-01-02")),
	}, nil
}

// scoreCategorical replays the persisted encode+classify pipeline on
// the record's categorical tuple and attaches dtree_prob. The raw
// tuple is dropped afterward so the scored feature set matches the
// training matrix.
func (r *Runner) scoreCategorical(tbl *dataset.Table, log *zap.Logger) error {
	payload, ok, err := r.store.Load(borders.ModelArtifact)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, borders.ModelArtifact)
	}
	model, err := dtree.DecodePipeline(payload)
	if err != nil {
		return err
	}

	rows, err := categoricalRows(tbl)
	if err != nil {
		return err
	}
	probs := make([]float64, len(rows))
	for i, row := range rows {
		probs[i] = model.Proba1(row)
	}
	if err := tbl.AddColumn(&dataset.Column{Name: ProbColumn, Kind: dataset.Numeric, Nums: probs}); err != nil {
		return err
	}
	log.Info("applied categorical probability model", zap.String("column", ProbColumn))

	tbl.Drop(dataset.CategoricalColumns...)
	return nil
}
