package nn

import (
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"

	"github.com/turtacn/potencynet/pkg/errors"
)

// Backend configurations understood by NewBackend.  Only the pure Go backend
// is linked into the binary; the XLA accelerators are tried first so a configured
// accelerator strategy can fall back cleanly.
const (
	BackendGo   = "go"
	BackendCUDA = "xla:cuda"
	BackendTPU  = "xla:tpu"
)

// NewBackend opens the graph backend named by config.  An empty config
// selects the pure Go backend.
func NewBackend(config string) (backends.Backend, error) {
	if config == "" {
		config = BackendGo
	}
	b, err := backends.NewWithConfig(config)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAIInferenceFailed, "open compute backend").WithDetail(config)
	}
	return b, nil
}

// backendAvailable reports whether config can be opened, releasing the
// backend again.  Backend constructors may panic on unknown plugins.
func backendAvailable(config string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	b, err := NewBackend(config)
	if err != nil {
		return false
	}
	b.Finalize()
	return true
}
