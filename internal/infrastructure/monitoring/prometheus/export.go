package prometheus

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/pkg/errors"
)

// ExportConfig selects where a batch run leaves its metrics.  Both targets
// are optional.
type ExportConfig struct {
	TextfilePath   string        `mapstructure:"textfile_path" yaml:"textfile_path" json:"textfile_path"`
	PushgatewayURL string        `mapstructure:"pushgateway_url" yaml:"pushgateway_url" json:"pushgateway_url"`
	Job            string        `mapstructure:"job" yaml:"job" json:"job"`
	PushTimeout    time.Duration `mapstructure:"push_timeout" yaml:"push_timeout" json:"push_timeout"`
}

// Exporter writes the gathered metrics of a finished run.
type Exporter struct {
	gatherer prometheus.Gatherer
	cfg      ExportConfig
	logger   logging.Logger
}

func NewExporter(g prometheus.Gatherer, cfg ExportConfig, logger logging.Logger) *Exporter {
	if cfg.Job == "" {
		cfg.Job = "potencynet"
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Exporter{gatherer: g, cfg: cfg, logger: logger}
}

// WriteTextfile writes the node_exporter textfile format to path.
func (e *Exporter) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "metrics directory not writable").WithDetail(path)
	}
	if err := prometheus.WriteToTextfile(path, e.gatherer); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write metrics textfile").WithDetail(path)
	}
	return nil
}

// Push sends all metrics to the Pushgateway grouped by run_id.
func (e *Exporter) Push(ctx context.Context, url, runID string) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PushTimeout)
	defer cancel()
	p := push.New(url, e.cfg.Job).Gatherer(e.gatherer)
	if runID != "" {
		p = p.Grouping("run_id", runID)
	}
	if err := p.PushContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "pushgateway push failed").WithDetail(url)
	}
	return nil
}

// Export runs every configured target.  Failures are logged and the first
// one is returned after all targets were tried.
func (e *Exporter) Export(ctx context.Context, runID string) error {
	var first error
	if e.cfg.TextfilePath != "" {
		if err := e.WriteTextfile(e.cfg.TextfilePath); err != nil {
			e.logger.Warn("metrics textfile export failed", logging.Err(err))
			first = err
		} else {
			e.logger.Info("metrics written", logging.String("path", e.cfg.TextfilePath))
		}
	}
	if e.cfg.PushgatewayURL != "" {
		if err := e.Push(ctx, e.cfg.PushgatewayURL, runID); err != nil {
			e.logger.Warn("metrics push failed", logging.Err(err))
			if first == nil {
				first = err
			}
		} else {
			e.logger.Info("metrics pushed", logging.String("url", e.cfg.PushgatewayURL), logging.String("run_id", runID))
		}
	}
	return first
}
