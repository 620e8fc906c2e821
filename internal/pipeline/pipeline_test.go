package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"domainsift/internal/borders"
	"domainsift/internal/config"
	"domainsift/internal/labels"
	"domainsift/internal/outliers"
)

func newRunner(t *testing.T) (*Runner, *borders.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := borders.Open(filepath.Join(dir, "borders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Config{
		BordersDir:        dir,
		OutlierMultiplier: 8,
		ShuffleSeed:       1,
		OutputDir:         dir,
	}
	return New(cfg, store, zap.NewNop()), store
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const genericHeader = "domain_name:str,label:str," +
	"geo_continent_hash:str,geo_countries_hash:str,rdap_registrar_name_hash:str," +
	"tls_root_authority_hash:str,tls_leaf_authority_hash:str,lex_tld_hash:str," +
	"lex_len,rdap_domain_age,dns_evaluated_on:str"

func genericFixture(t *testing.T) (benign, malign string) {
	var b strings.Builder
	b.WriteString(genericHeader + "\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "good%d.com,benign:alexa,EU,DE,reg1,rootA,leafA,com,%d,%d,2024-01-01\n",
			i, 10+i, 100+i)
	}
	benign = writeCSV(t, "benign_2024.csv", b.String())

	var m strings.Builder
	m.WriteString(genericHeader + "\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&m, "bad%d.xyz,malware:feed,AS,CN,reg2,rootB,leafB,xyz,%d,%d,2024-01-01\n",
			i, 30+i, 5+i)
	}
	malign = writeCSV(t, "malware_feeds_2024.csv", m.String())
	return benign, malign
}

func TestTrainGenericEndToEnd(t *testing.T) {
	runner, store := newRunner(t)
	benign, malign := genericFixture(t)

	result, err := runner.Train(context.Background(), TrainInput{
		BenignPath: benign,
		MalignPath: malign,
		Policy:     labels.Generic,
		Model:      "xgboost",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"lex_len", "rdap_domain_age", ProbColumn}, result.FeatureNames,
		"identifier, label, raw categoricals and non-training columns are gone")

	rows, cols := result.Features.Dims()
	assert.Equal(t, 20, rows, "the loose default multiplier removes nothing here")
	assert.Equal(t, 3, cols)

	zeros, ones := 0, 0
	for _, l := range result.Labels {
		switch l {
		case 0:
			zeros++
		case 1:
			ones++
		}
	}
	assert.Equal(t, 10, zeros)
	assert.Equal(t, 10, ones)

	for i := 0; i < rows; i++ {
		p := result.Features.At(i, 2)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}

	// The run persists all three artifacts for later scoring.
	for _, name := range []string{borders.BoundsArtifact, borders.ModelArtifact} {
		_, ok, err := store.Load(name)
		require.NoError(t, err)
		assert.True(t, ok, "artifact %q must be persisted", name)
	}

	date := time.Now().Format("2006-01-02")
	assert.Equal(t, "dataset_malwarefeeds_"+date+".csv", result.DatasetName)
}

func TestTrainThenScoreReplay(t *testing.T) {
	runner, _ := newRunner(t)
	benign, malign := genericFixture(t)

	_, err := runner.Train(context.Background(), TrainInput{
		BenignPath: benign,
		MalignPath: malign,
		Policy:     labels.Generic,
		Model:      "xgboost",
	})
	require.NoError(t, err)

	// A record carrying the benign categorical tuple must come back
	// with a zero malicious probability from the persisted model.
	record := map[string]any{
		"domain_name":              "fresh.com",
		"geo_continent_hash":       "EU",
		"geo_countries_hash":       "DE",
		"rdap_registrar_name_hash": "reg1",
		"tls_root_authority_hash":  "rootA",
		"tls_leaf_authority_hash":  "leafA",
		"lex_tld_hash":             "com",
		"lex_len":                  15.0,
		"rdap_domain_age":          100.0,
	}
	result, err := runner.Score(context.Background(), ScoreInput{
		Record: record,
		Policy: labels.Generic,
		Model:  "xgboost",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"lex_len", "rdap_domain_age", ProbColumn}, result.FeatureNames,
		"scored feature set must match the training matrix")

	at := func(name string) float64 {
		for j, n := range result.FeatureNames {
			if n == name {
				return result.Features.At(0, j)
			}
		}
		t.Fatalf("feature %q not in result", name)
		return 0
	}
	assert.Equal(t, 15.0, at("lex_len"))
	assert.Equal(t, 100.0, at("rdap_domain_age"))
	assert.InDelta(t, 0, at(ProbColumn), 1e-9, "benign tuple is fully separable in the fixture")
	assert.Empty(t, result.ClassMap, "scoring is unlabeled")
	assert.Contains(t, result.DatasetName, "single_record_dataset_")
}

func TestTrainWithScaleThenScore(t *testing.T) {
	runner, store := newRunner(t)
	benign, malign := genericFixture(t)

	trainResult, err := runner.Train(context.Background(), TrainInput{
		BenignPath: benign,
		MalignPath: malign,
		Policy:     labels.Generic,
		Model:      "xgboost",
		Scale:      true,
	})
	require.NoError(t, err)

	_, ok, err := store.Load(borders.ScalerArtifact)
	require.NoError(t, err)
	assert.True(t, ok, "scaling run must persist the scaler")

	rows, cols := trainResult.Features.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := trainResult.Features.At(i, j)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0, "xgboost selects the min-max scaler")
		}
	}

	result, err := runner.Score(context.Background(), ScoreInput{
		Record: map[string]any{
			"domain_name":              "fresh.com",
			"geo_continent_hash":       "EU",
			"geo_countries_hash":       "DE",
			"rdap_registrar_name_hash": "reg1",
			"tls_root_authority_hash":  "rootA",
			"tls_leaf_authority_hash":  "leafA",
			"lex_tld_hash":             "com",
			"lex_len":                  15.0,
			"rdap_domain_age":          100.0,
		},
		Policy: labels.Generic,
		Model:  "xgboost",
		Scale:  true,
	})
	require.NoError(t, err)

	for j := range result.FeatureNames {
		v := result.Features.At(0, j)
		assert.GreaterOrEqual(t, v, 0.0, "in-range record lands inside the fitted min-max interval")
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestScoreRejectsOutOfBoundsRecord(t *testing.T) {
	runner, _ := newRunner(t)
	benign, malign := genericFixture(t)

	_, err := runner.Train(context.Background(), TrainInput{
		BenignPath: benign,
		MalignPath: malign,
		Policy:     labels.Generic,
		Model:      "xgboost",
	})
	require.NoError(t, err)

	_, err = runner.Score(context.Background(), ScoreInput{
		Record: map[string]any{
			"domain_name":              "huge.com",
			"geo_continent_hash":       "EU",
			"geo_countries_hash":       "DE",
			"rdap_registrar_name_hash": "reg1",
			"tls_root_authority_hash":  "rootA",
			"tls_leaf_authority_hash":  "leafA",
			"lex_tld_hash":             "com",
			"lex_len":                  1e6,
			"rdap_domain_age":          100.0,
		},
		Policy: labels.Generic,
		Model:  "xgboost",
	})
	assert.ErrorIs(t, err, outliers.ErrOutOfBounds)
}

func TestScoreWithoutArtifacts(t *testing.T) {
	t.Run("bounds missing under binary policy", func(t *testing.T) {
		runner, _ := newRunner(t)
		_, err := runner.Score(context.Background(), ScoreInput{
			Record: map[string]any{"domain_name": "a.com", "lex_len": 3.0},
			Policy: labels.Binary,
		})
		assert.ErrorIs(t, err, ErrArtifactMissing)
	})

	t.Run("model missing under generic policy", func(t *testing.T) {
		runner, _ := newRunner(t)
		record := map[string]any{
			"domain_name":              "a.com",
			"geo_continent_hash":       "EU",
			"geo_countries_hash":       "DE",
			"rdap_registrar_name_hash": "reg1",
			"tls_root_authority_hash":  "rootA",
			"tls_leaf_authority_hash":  "leafA",
			"lex_tld_hash":             "com",
			"lex_len":                  3.0,
		}
		_, err := runner.Score(context.Background(), ScoreInput{
			Record: record,
			Policy: labels.Generic,
		})
		assert.ErrorIs(t, err, ErrArtifactMissing)
	})
}

func TestScoreScaleWithoutPersistedScaler(t *testing.T) {
	runner, _ := newRunner(t)
	benign, malign := genericFixture(t)

	// Training without scaling persists bounds and the model but no
	// scaler artifact.
	_, err := runner.Train(context.Background(), TrainInput{
		BenignPath: benign,
		MalignPath: malign,
		Policy:     labels.Generic,
		Model:      "xgboost",
	})
	require.NoError(t, err)

	_, err = runner.Score(context.Background(), ScoreInput{
		Record: map[string]any{
			"domain_name":              "fresh.com",
			"geo_continent_hash":       "EU",
			"geo_countries_hash":       "DE",
			"rdap_registrar_name_hash": "reg1",
			"tls_root_authority_hash":  "rootA",
			"tls_leaf_authority_hash":  "leafA",
			"lex_tld_hash":             "com",
			"lex_len":                  15.0,
			"rdap_domain_age":          100.0,
		},
		Policy: labels.Generic,
		Model:  "xgboost",
		Scale:  true,
	})
	assert.ErrorIs(t, err, ErrArtifactMissing,
		"scaled scoring against an unscaled training run must fail loudly")
}

func TestTrainCanceledContext(t *testing.T) {
	runner, _ := newRunner(t)
	benign, malign := genericFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Train(ctx, TrainInput{
		BenignPath: benign,
		MalignPath: malign,
		Policy:     labels.Generic,
		Model:      "xgboost",
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainNoDatasets(t *testing.T) {
	runner, _ := newRunner(t)
	_, err := runner.Train(context.Background(), TrainInput{Policy: labels.Generic})
	assert.ErrorIs(t, err, ErrNoDatasets)
}

func TestTrainNoLabelColumn(t *testing.T) {
	runner, _ := newRunner(t)
	malign := writeCSV(t, "unlabeled.csv", "domain_name:str,lex_len\na.com,3\nb.net,5\n")

	_, err := runner.Train(context.Background(), TrainInput{
		MalignPath: malign,
		Policy:     labels.Binary,
	})
	assert.ErrorIs(t, err, ErrNoLabelColumn)
}

func TestTrainBinaryLexicalOnly(t *testing.T) {
	runner, _ := newRunner(t)

	header := "domain_name:str,label:str,lex_len,lex_entropy,rdap_domain_age\n"
	var b strings.Builder
	b.WriteString(header)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "good%d.com,benign:alexa,%d,0.3,200\n", i, 8+i)
	}
	var m strings.Builder
	m.WriteString(header)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&m, "qx%d.top,dga:conficker,%d,0.9,3\n", i, 20+i)
	}

	result, err := runner.Train(context.Background(), TrainInput{
		BenignPath: writeCSV(t, "benign_lex.csv", b.String()),
		MalignPath: writeCSV(t, "dga_lex.csv", m.String()),
		Policy:     labels.Binary,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"lex_len", "lex_entropy"}, result.FeatureNames,
		"binary policy restricts the feature set to lexical columns")
	assert.Equal(t, map[string]int{"benign:alexa": 0, "dga:conficker": 1}, result.ClassMap)
}

func TestTrainMulticlassFamilyIDs(t *testing.T) {
	runner, _ := newRunner(t)

	var m strings.Builder
	m.WriteString("domain_name:str,label:str,lex_len\n")
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&m, "c%d.top,dga:conficker:seedA,%d\n", i, 10+i)
		fmt.Fprintf(&m, "s%d.top,dga:suppobox,%d\n", i, 20+i)
	}
	m.WriteString("u0.top,dga:mystery,15\n")

	families := labels.FamilyTable{"dga:conficker": 3, "dga:suppobox": 7}
	result, err := runner.Train(context.Background(), TrainInput{
		MalignPath: writeCSV(t, "dga_multi.csv", m.String()),
		Policy:     labels.Multiclass,
		Families:   families,
	})
	require.NoError(t, err)

	counts := make(map[int]int)
	for _, l := range result.Labels {
		counts[l]++
	}
	assert.Equal(t, 3, counts[3])
	assert.Equal(t, 3, counts[7])
	assert.Equal(t, 1, counts[labels.Sentinel], "unknown family keeps its row under the sentinel class")
}

func TestDatasetName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"malware_feeds_2024-06.csv", "malwarefeeds"},
		{"benign.csv", "benign"},
		{"/data/dga_corpus.csv", "dgacorpus"},
	}
	date := time.Now().Format("2006-01-02")
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, fmt.Sprintf("dataset_%s_%s.csv", tt.want, date), datasetName(tt.path))
		})
	}
}
