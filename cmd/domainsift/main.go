// domainsift turns raw per-domain telemetry (DNS/RDAP/TLS/lexical
// attributes) into a numeric feature matrix for domain-classification
// models. `train` processes a labeled corpus and fits the statistical
// artifacts; `score` replays those artifacts on a single record.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"domainsift/internal/borders"
	"domainsift/internal/config"
	"domainsift/internal/dataset"
	"domainsift/internal/labels"
	"domainsift/internal/pipeline"
)

var (
	// Global flags
	verbose    bool
	configPath string
	bordersDir string

	// train/score flags
	benignPath string
	malignPath string
	policyFlag string
	modelFlag  string
	scaleFlag  bool
	recordPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "domainsift",
	Short: "Feature engineering for malicious-domain classification",
	Long: `domainsift transforms raw per-domain telemetry records into a numeric
feature matrix and integer labels for training or serving a
domain-classification model.

Statistical decisions (outlier bounds, scaler parameters, the learned
categorical probability model) are computed once by 'train', persisted
to the borders store, and replayed verbatim by every 'score' call
until the next training run.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit the feature pipeline on a labeled corpus",
	Long: `Loads the benign and malign datasets (malign only under the
multiclass policy), runs the full stage sequence, persists the fitted
artifacts and writes the resulting feature matrix.

Example:
  domainsift train --benign benign_2024.csv --malign malware_feeds.csv --model xgboost --scale`,
	RunE: runTrain,
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Run one unlabeled record through the fitted pipeline",
	Long: `Reads a single JSON record (from --record, or stdin with '-') and
replays the persisted artifacts on it. Fails if no training run has
persisted the required artifacts, and rejects records falling outside
the fitted outlier bounds.`,
	RunE: runScore,
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&bordersDir, "borders-dir", "", "override the artifact store directory")

	for _, cmd := range []*cobra.Command{trainCmd, scoreCmd} {
		cmd.Flags().StringVar(&policyFlag, "policy", "generic", "labeling policy: binary, multiclass or generic")
		cmd.Flags().StringVar(&modelFlag, "model", "xgboost", "target downstream model (svm, xgboost, cnn)")
		cmd.Flags().BoolVar(&scaleFlag, "scale", false, "apply the recommended scaler")
	}
	trainCmd.Flags().StringVar(&benignPath, "benign", "", "benign dataset path")
	trainCmd.Flags().StringVar(&malignPath, "malign", "", "malign dataset path")
	scoreCmd.Flags().StringVar(&recordPath, "record", "-", "JSON record path, '-' for stdin")

	rootCmd.AddCommand(trainCmd, scoreCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup() (config.Config, *borders.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if bordersDir != "" {
		cfg.BordersDir = bordersDir
	}
	store, err := borders.Open(cfg.StorePath())
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, store, nil
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	policy := labels.ParsePolicy(policyFlag)
	var families labels.FamilyTable
	if policy == labels.Multiclass {
		if cfg.FamilyTable == "" {
			return fmt.Errorf("multiclass policy requires family_table in the config file")
		}
		families, err = labels.LoadFamilies(cfg.FamilyTable)
		if err != nil {
			return err
		}
	}

	runner := pipeline.New(cfg, store, logger)
	result, err := runner.Train(cmd.Context(), pipeline.TrainInput{
		BenignPath: benignPath,
		MalignPath: malignPath,
		Policy:     policy,
		Model:      modelFlag,
		Scale:      scaleFlag,
		Families:   families,
	})
	if err != nil {
		return err
	}

	rows, cols := result.Features.Dims()
	outPath := filepath.Join(cfg.OutputDir, result.DatasetName)
	matrix := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		matrix[i] = result.Features.RawRowView(i)
	}
	if err := dataset.WriteMatrixCSV(outPath, result.FeatureNames, matrix); err != nil {
		return err
	}

	logger.Info("training run complete",
		zap.Int("rows", rows),
		zap.Int("features", cols),
		zap.Any("class_map", result.ClassMap),
		zap.String("output", outPath))
	fmt.Printf("wrote %d rows x %d features to %s\n", rows, cols, outPath)
	return nil
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	record, err := readRecord(recordPath)
	if err != nil {
		return err
	}

	runner := pipeline.New(cfg, store, logger)
	result, err := runner.Score(cmd.Context(), pipeline.ScoreInput{
		Record: record,
		Policy: labels.ParsePolicy(policyFlag),
		Model:  modelFlag,
		Scale:  scaleFlag,
	})
	if err != nil {
		return err
	}

	out := make(map[string]float64, len(result.FeatureNames))
	for j, name := range result.FeatureNames {
		out[name] = result.Features.At(0, j)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func readRecord(path string) (map[string]any, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	return record, nil
}
