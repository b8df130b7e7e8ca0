package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/potencynet/internal/application/pipeline"
	"github.com/turtacn/potencynet/internal/config"
	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/prometheus"
)

// runOptions are the flags of the run command.  Set flags override the
// configuration file.
type runOptions struct {
	epochs      int
	submission  string
	checkpoint  string
	excludeRows []int
	strategy    string
	noPublish   bool
	noCache     bool
	watch       bool
}

// NewRunCmd creates the run command, which executes the full pipeline.
func NewRunCmd() *cobra.Command {
	return newRunCmd(&runOptions{})
}

func newRunCmd(opts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train the model and write the submission",
		Long: "Run loads the train and test tables with their voxel arrays, extracts descriptors\n" +
			"and sequences, trains the network with learning-rate decay, checkpointing and\n" +
			"early stopping, then writes ID,IC50_nM predictions for the test set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.epochs, "epochs", 0, "maximum number of epochs (overrides training.epochs)")
	f.StringVar(&opts.submission, "submission", "", "submission CSV path (overrides data.submission_path)")
	f.StringVar(&opts.checkpoint, "checkpoint", "", "best-model checkpoint path (overrides training.checkpoint_path)")
	f.IntSliceVar(&opts.excludeRows, "exclude-rows", nil, "zero-based training rows to drop (overrides data.exclude_rows)")
	f.StringVar(&opts.strategy, "strategy", "", "execution strategy: default|mirrored|tpu|gpu")
	f.BoolVar(&opts.noPublish, "no-publish", false, "skip artifact publishing even if storage is enabled")
	f.BoolVar(&opts.noCache, "no-cache", false, "do not use the descriptor cache")
	f.BoolVar(&opts.watch, "watch", false, "follow log.level changes in the config file while running")
	return cmd
}

// apply copies the set flags onto cfg.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("epochs") {
		cfg.Training.Epochs = o.epochs
	}
	if f.Changed("submission") {
		cfg.Data.SubmissionPath = o.submission
	}
	if f.Changed("checkpoint") {
		cfg.Training.CheckpointPath = o.checkpoint
	}
	if f.Changed("exclude-rows") {
		cfg.Data.ExcludeRows = o.excludeRows
	}
	if f.Changed("strategy") {
		cfg.Model.Strategy = strings.ToLower(o.strategy)
	}
	if o.noPublish {
		cfg.Storage.Enabled = false
	}
	if o.noCache {
		cfg.Cache.Enabled = false
	}
}

func runPipeline(cmd *cobra.Command, opts *runOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := *cliCtx.Config
	opts.apply(cmd, &cfg)
	logger := cliCtx.Logger

	if opts.watch {
		watchLogLevel(cliCtx, logger)
	}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "potency",
		EnableProcessMetrics: true,
	}, logger)
	if err != nil {
		return err
	}
	exporter := prometheus.NewExporter(collector.Gatherer(), prometheus.ExportConfig{
		TextfilePath:   cfg.Metrics.TextfilePath,
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		Job:            cfg.Metrics.JobName,
	}, logger.Named("metrics"))

	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(prometheus.NewTrainingMetrics(collector)),
		pipeline.WithExporter(exporter),
	}

	cache, closeCache := openDescriptorCache(cfg.Cache, logger)
	defer closeCache()
	if cache != nil {
		pipeOpts = append(pipeOpts, pipeline.WithDescriptorCache(cache))
	}

	repo, closeRepo, err := openArtifactRepository(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeRepo()
	if repo != nil {
		pipeOpts = append(pipeOpts, pipeline.WithArtifactRepository(repo))
	}

	p, err := pipeline.New(&cfg, pipeOpts...)
	if err != nil {
		return err
	}

	ctx, cancel := cliCtx.commandContext(cmd)
	defer cancel()
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}

	PrintSuccess(cmd, fmt.Sprintf("submission written to %s", res.SubmissionPath))
	return PrintResult(cmd, runView{res})
}

// watchLogLevel follows log.level in the config file.  Other settings are
// not applied mid-run.
func watchLogLevel(cliCtx *CLIContext, logger logging.Logger) {
	if cliCtx.ConfigPath == "" {
		logger.Warn("--watch needs a config file, ignoring")
		return
	}
	setter, ok := logger.(logging.LevelSetter)
	if !ok {
		return
	}
	err := config.Watch(cliCtx.ConfigPath, func(c *config.Config) {
		setter.SetLevel(c.Log.Level)
		logger.Info("log level changed", logging.String("level", c.Log.Level))
	}, func(err error) {
		logger.Warn("ignoring invalid config change", logging.Err(err))
	})
	if err != nil {
		logger.Warn("config watch failed", logging.Err(err))
	}
}

// runView renders a pipeline result for the text and table formats.
type runView struct {
	*pipeline.Result
}

func (v runView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run:            %s\n", v.RunID)
	fmt.Fprintf(&sb, "Train records:  %d (dropped rows %v)\n", v.TrainRecords, v.DroppedRows)
	fmt.Fprintf(&sb, "Test records:   %d\n", v.TestRecords)
	fmt.Fprintf(&sb, "Epochs:         %d (best %d, val_loss %.4f)\n", v.Epochs, v.BestEpoch, v.BestValLoss)
	fmt.Fprintf(&sb, "Train RMSE:     %.4f\n", v.TrainRMSE)
	fmt.Fprintf(&sb, "Checkpoint:     %s\n", v.CheckpointPath)
	fmt.Fprintf(&sb, "Submission:     %s\n", v.SubmissionPath)
	if v.Manifest != nil {
		fmt.Fprintf(&sb, "Published:      %d objects to %s\n", len(v.Manifest.Objects), v.Manifest.Bucket)
	}
	fmt.Fprintf(&sb, "Duration:       %s", v.Duration.Round(time.Millisecond))
	return sb.String()
}

func (v runView) TableHeaders() []string {
	return []string{"Stage", "Value"}
}

func (v runView) TableRows() [][]string {
	rows := make([][]string, 0, len(pipeline.Stages)+2)
	for _, s := range pipeline.Stages {
		if d, ok := v.Stages[s]; ok {
			rows = append(rows, []string{string(s), d})
		}
	}
	rows = append(rows,
		[]string{"train_rmse", strconv.FormatFloat(v.TrainRMSE, 'f', 4, 64)},
		[]string{"best_epoch", strconv.Itoa(v.BestEpoch)},
	)
	return rows
}
