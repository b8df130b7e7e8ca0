package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/potencynet/internal/config"
	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/potencynet/internal/infrastructure/storage/minio"
	"github.com/turtacn/potencynet/internal/intelligence/potency_net"
	"github.com/turtacn/potencynet/internal/intelligence/training"
	logtest "github.com/turtacn/potencynet/internal/testutil"
	"github.com/turtacn/potencynet/pkg/errors"
)

var trainSMILES = []string{
	"CCO", "CC(=O)O", "c1ccccc1", "CCN", "CCCl",
	"OCC(O)CO", "CC(C)O", "C1CCCCC1", "CCOC", "CN(C)C",
}

var testSMILES = []string{"CCCO", "c1ccncc1", "CC(=O)N"}

type MockArtifactRepository struct {
	mock.Mock
}

func (m *MockArtifactRepository) Publish(ctx context.Context, runID string, artifacts []minio.Artifact, labels map[string]string) (*minio.Manifest, error) {
	args := m.Called(ctx, runID, artifacts, labels)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*minio.Manifest), args.Error(1)
}

func (m *MockArtifactRepository) List(ctx context.Context, runID string) ([]minio.PublishedObject, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]minio.PublishedObject), args.Error(1)
}

// writeVoxels writes n deterministic 4x4x4 grids as a float32 .npy file.
func writeVoxels(t *testing.T, path string, n int) {
	t.Helper()
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, 4, 4, 4), }", n)
	pad := (64 - (10+len(header)+1)%64) % 64
	header += strings.Repeat(" ", pad) + "\n"

	data := make([]float32, n*64)
	for i := range data {
		data[i] = float32((i*7)%11) / 11
	}
	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(header))))
	buf.WriteString(header)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, data))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeTable(t *testing.T, path string, header []string, rows [][]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := csv.NewWriter(f)
	require.NoError(t, w.Write(header))
	require.NoError(t, w.WriteAll(rows))
}

type fixture struct {
	dir string
	cfg *config.Config
}

func newFixture(t *testing.T, train, test []string) *fixture {
	t.Helper()
	dir := t.TempDir()

	trainRows := make([][]string, len(train))
	for i, s := range train {
		trainRows[i] = []string{fmt.Sprintf("TR%02d", i), s, fmt.Sprint(10 * (i + 1))}
	}
	testRows := make([][]string, len(test))
	for i, s := range test {
		testRows[i] = []string{fmt.Sprintf("TE%02d", i), s}
	}
	writeTable(t, filepath.Join(dir, "train.csv"), []string{"ID", "Smiles", "IC50_nM"}, trainRows)
	writeTable(t, filepath.Join(dir, "test.csv"), []string{"ID", "Smiles"}, testRows)
	writeVoxels(t, filepath.Join(dir, "train_voxel.npy"), len(train))
	writeVoxels(t, filepath.Join(dir, "test_voxel.npy"), len(test))

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Data.TrainCSV = filepath.Join(dir, "train.csv")
	cfg.Data.TestCSV = filepath.Join(dir, "test.csv")
	cfg.Data.TrainVoxels = filepath.Join(dir, "train_voxel.npy")
	cfg.Data.TestVoxels = filepath.Join(dir, "test_voxel.npy")
	cfg.Data.SubmissionPath = filepath.Join(dir, "out", "submission.csv")
	cfg.Features.Workers = 2
	cfg.Training.Epochs = 2
	cfg.Training.BatchSize = 4
	cfg.Training.LRMinDelta = config.DefaultLRMinDelta
	cfg.Training.CheckpointPath = filepath.Join(dir, "best_model.npz")
	return &fixture{dir: dir, cfg: cfg}
}

func smallArchitecture() potency_net.Config {
	arch := potency_net.DefaultConfig()
	arch.ConvFilters = []int{2, 2, 2}
	arch.EmbeddingDim = 4
	arch.LSTMUnits = 4
	arch.DescriptorUnits = 4
	arch.HeadUnits = []int{4, 4}
	return arch
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithArchitecture(smallArchitecture()), WithRunID("test-run")}, opts...)
	p, err := New(f.cfg, opts...)
	require.NoError(t, err)
	return p
}

func readSubmission(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestPipeline_Run_EndToEnd(t *testing.T) {
	f := newFixture(t, trainSMILES, testSMILES)

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "potency"}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewTrainingMetrics(collector)
	promFile := filepath.Join(f.dir, "metrics", "potency.prom")
	exporter := prometheus.NewExporter(collector.Gatherer(), prometheus.ExportConfig{TextfilePath: promFile}, nil)

	repo := new(MockArtifactRepository)
	repo.On("Publish", mock.Anything, "test-run", mock.MatchedBy(func(as []minio.Artifact) bool {
		return len(as) == 2 && as[0].Kind == "checkpoint" && as[1].Kind == "submission"
	}), mock.MatchedBy(func(l map[string]string) bool {
		return l["strategy"] == "default" && l["epochs"] == "2"
	})).Return(&minio.Manifest{RunID: "test-run", Bucket: "b", Objects: make([]minio.PublishedObject, 2)}, nil)

	p := f.pipeline(t, WithMetrics(metrics), WithExporter(exporter), WithArtifactRepository(repo))
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	repo.AssertExpectations(t)

	assert.Equal(t, "test-run", res.RunID)
	assert.Equal(t, len(trainSMILES), res.TrainRecords)
	assert.Equal(t, len(testSMILES), res.TestRecords)
	assert.Equal(t, len("OCC(O)CO"), res.SequenceLength)
	assert.Equal(t, 2, res.Epochs)
	assert.Greater(t, res.TrainRMSE, 0.0)
	assert.NotNil(t, res.Manifest)
	assert.Len(t, res.Stages, len(Stages))

	rows := readSubmission(t, f.cfg.Data.SubmissionPath)
	require.Len(t, rows, len(testSMILES)+1)
	assert.Equal(t, []string{"ID", "IC50_nM"}, rows[0])
	for i, row := range rows[1:] {
		assert.Equal(t, fmt.Sprintf("TE%02d", i), row[0])
	}
	assert.FileExists(t, f.cfg.Training.CheckpointPath)

	prom, err := os.ReadFile(promFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `potency_epochs_total{run_id="test-run"} 2`)
	assert.Contains(t, string(prom), `potency_batch_items_total{batch="descriptors",status="ok"}`)
	assert.Contains(t, string(prom), `potency_stage_duration_seconds_count{stage="publish"} 1`)
}

func TestPipeline_Run_ExcludeRows(t *testing.T) {
	f := newFixture(t, trainSMILES, testSMILES)
	f.cfg.Data.ExcludeRows = []int{3}

	res, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(trainSMILES)-1, res.TrainRecords)
	assert.Equal(t, []int{3}, res.DroppedRows)
}

func TestPipeline_Run_ExcludedRowMissing(t *testing.T) {
	f := newFixture(t, trainSMILES, testSMILES)
	f.cfg.Data.ExcludeRows = []int{50}

	_, err := f.pipeline(t).Run(context.Background())
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageLoad, se.Stage)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatasetMisaligned))
}

func TestPipeline_Run_MisalignedVoxels(t *testing.T) {
	f := newFixture(t, trainSMILES, testSMILES)
	writeVoxels(t, f.cfg.Data.TestVoxels, len(testSMILES)+1)

	res, err := f.pipeline(t).Run(context.Background())
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageLoad, se.Stage)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatasetMisaligned))
	assert.Equal(t, "failed", res.Stages[StageLoad])
	assert.NoFileExists(t, f.cfg.Data.SubmissionPath)
}

func TestPipeline_Run_InvalidTrainingSMILES(t *testing.T) {
	train := append([]string{}, trainSMILES...)
	train[4] = "C1CC"

	t.Run("abort", func(t *testing.T) {
		f := newFixture(t, train, testSMILES)
		f.cfg.Data.InvalidSMILES = InvalidSMILESAbort

		_, err := f.pipeline(t).Run(context.Background())
		var se *StageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StageFeaturize, se.Stage)
		assert.True(t, errors.IsInputError(errors.GetCode(err)))
	})

	t.Run("exclude", func(t *testing.T) {
		f := newFixture(t, train, testSMILES)
		f.cfg.Data.InvalidSMILES = InvalidSMILESExclude
		f.cfg.Data.ExcludeRows = []int{7}
		logger := logtest.NewMockLogger()

		res, err := f.pipeline(t, WithLogger(logger)).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, len(train)-2, res.TrainRecords)
		assert.Equal(t, []int{4, 7}, res.DroppedRows)

		warns := logger.Filter("warn", "excluding training record")
		require.Len(t, warns, 1)
		row, _ := warns[0].Field("row")
		assert.Equal(t, 4, row)
		runID, _ := warns[0].Field("run_id")
		assert.Equal(t, "test-run", runID)
	})
}

func TestPipeline_Run_InvalidTestSMILESAlwaysAborts(t *testing.T) {
	test := append([]string{}, testSMILES...)
	test[1] = "c1ccc(cc1"

	f := newFixture(t, trainSMILES, test)
	f.cfg.Data.InvalidSMILES = InvalidSMILESExclude

	_, err := f.pipeline(t).Run(context.Background())
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageFeaturize, se.Stage)
}

func TestPipeline_Run_RawSequencesAndFixedLength(t *testing.T) {
	f := newFixture(t, trainSMILES, testSMILES)
	f.cfg.Features.RawSequences = true
	f.cfg.Features.SequenceLength = 5

	res, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.SequenceLength)
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	f := newFixture(t, trainSMILES, testSMILES)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline(t).Run(ctx)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageLoad, se.Stage)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCancelled))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Featurize_CancelledIsNotInvalidSMILES(t *testing.T) {
	f := newFixture(t, trainSMILES, testSMILES)
	p := f.pipeline(t)
	r := &run{result: &Result{Stages: map[Stage]string{}}}
	require.NoError(t, p.load(context.Background(), r))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.featurize(ctx, r)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCancelled), err.Error())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 130, errors.ExitCodeForCode(errors.GetCode(err)))
	assert.Empty(t, r.dropped)
}

func TestPipeline_Run_PublishFailure(t *testing.T) {
	f := newFixture(t, trainSMILES, testSMILES)
	repo := new(MockArtifactRepository)
	repo.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeArtifactPublishing, "bucket gone"))

	_, err := f.pipeline(t, WithArtifactRepository(repo)).Run(context.Background())
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StagePublish, se.Stage)
	// the submission is written before publishing
	assert.FileExists(t, f.cfg.Data.SubmissionPath)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Model.Strategy = "quantum"
	_, err = New(cfg)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestNew_GeneratesRunID(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	a, err := New(cfg, WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	b, err := New(cfg)
	require.NoError(t, err)
	assert.Len(t, a.RunID(), 36)
	assert.NotEqual(t, a.RunID(), b.RunID())
}

func TestStageError(t *testing.T) {
	inner := errors.New(errors.ErrCodeSubmissionFailed, "disk full")
	err := error(&StageError{Stage: StageWrite, Err: inner})
	assert.Contains(t, err.Error(), "stage write")
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, errors.ErrCodeSubmissionFailed, errors.GetCode(err))
}

func TestSchedule(t *testing.T) {
	f := newFixture(t, trainSMILES, testSMILES)
	f.cfg.Training.LRPatience = 3
	f.cfg.Training.EarlyStopPatience = 6
	f.cfg.Model.Seed = 7
	s := f.pipeline(t).schedule()

	assert.Equal(t, 2, s.Epochs)
	assert.Equal(t, 3, s.ReduceLR.Patience)
	assert.Equal(t, 0.7, s.ReduceLR.Factor)
	assert.Equal(t, 1e-4, s.ReduceLR.MinDelta)
	assert.Equal(t, 6, s.EarlyStopping.Patience)
	assert.True(t, s.EarlyStopping.RestoreBest)
	assert.Equal(t, int64(7), s.Seed)
}

func TestArchitecture_ConfigOverrides(t *testing.T) {
	f := newFixture(t, trainSMILES, testSMILES)
	f.cfg.Model.LearningRate = 0.01
	f.cfg.Model.DropoutRate = 0.3
	arch := f.pipeline(t).architecture()

	assert.Equal(t, 0.01, arch.Optimizer.LearningRate)
	assert.Equal(t, 0.3, arch.DropoutRate)
	assert.Equal(t, 4, arch.BatchSize)
	assert.Equal(t, 37, arch.VocabularySize)
	assert.Equal(t, []int{2, 2, 2}, arch.ConvFilters)
}

func TestMetricsCallback_TrainEnd(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "t"}, nil)
	require.NoError(t, err)
	cb := &metricsCallback{metrics: prometheus.NewTrainingMetrics(collector)}
	run := &training.Run{ID: "r"}

	require.NoError(t, cb.OnEpochEnd(run, training.EpochLogs{Epoch: 1, Loss: 2, ValLoss: 1.5, LR: 1e-3, Duration: time.Millisecond}))
	require.NoError(t, cb.OnTrainEnd(run, &training.History{Epochs: []training.EpochLogs{
		{Epoch: 1, ValLoss: 1.5},
		{Epoch: 2, ValLoss: 1.2},
		{Epoch: 3, ValLoss: 1.3},
	}}))
	require.NoError(t, cb.OnTrainEnd(run, nil))

	expected := `
# HELP t_best_val_loss Lowest validation loss so far
# TYPE t_best_val_loss gauge
t_best_val_loss{run_id="r"} 1.2
# HELP t_stopped_epoch Epoch at which training ended
# TYPE t_stopped_epoch gauge
t_stopped_epoch{run_id="r"} 3
`
	require.NoError(t, testutil.GatherAndCompare(collector.Gatherer(), strings.NewReader(expected),
		"t_best_val_loss", "t_stopped_epoch"))
}

type fakeCache struct {
	hits map[string][]float64
	err  error
	sets int
}

func (c *fakeCache) GetVector(_ context.Context, smiles string) ([]float64, bool, error) {
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.hits[smiles]
	return v, ok, nil
}

func (c *fakeCache) SetVector(context.Context, string, []float64) error {
	c.sets++
	return nil
}

func TestInstrumentedCache(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "t"}, nil)
	require.NoError(t, err)
	m := prometheus.NewTrainingMetrics(collector)

	inner := &fakeCache{hits: map[string][]float64{"CCO": {1}}}
	assert.Same(t, inner, newInstrumentedCache(inner, nil))

	c := newInstrumentedCache(inner, m)
	ctx := context.Background()
	_, ok, err := c.GetVector(ctx, "CCO")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, _ = c.GetVector(ctx, "CCN")
	assert.False(t, ok)
	inner.err = fmt.Errorf("down")
	_, _, err = c.GetVector(ctx, "CCO")
	assert.Error(t, err)
	require.NoError(t, c.SetVector(ctx, "CCN", []float64{2}))
	assert.Equal(t, 1, inner.sets)

	expected := `
# HELP t_descriptor_cache_requests_total Descriptor cache lookups
# TYPE t_descriptor_cache_requests_total counter
t_descriptor_cache_requests_total{result="error"} 1
t_descriptor_cache_requests_total{result="hit"} 1
t_descriptor_cache_requests_total{result="miss"} 1
`
	require.NoError(t, testutil.GatherAndCompare(collector.Gatherer(), strings.NewReader(expected),
		"t_descriptor_cache_requests_total"))
}

func TestPipeline_NewExtractorUsesCache(t *testing.T) {
	f := newFixture(t, trainSMILES, testSMILES)
	cache := &fakeCache{hits: map[string][]float64{}}
	p := f.pipeline(t, WithDescriptorCache(cache))

	v, err := p.NewExtractor().Extract(context.Background(), "CCO")
	require.NoError(t, err)
	assert.Len(t, v, 14)
	assert.Equal(t, 1, cache.sets)
}
