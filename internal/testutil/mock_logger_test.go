package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/internal/testutil"
)

func TestMockLogger(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Info("test info", logging.String("key", "value"))

	messages := logger.GetMessages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "info", messages[0].Level)
	assert.Equal(t, "test info", messages[0].Message)

	logger.Clear()
	assert.Len(t, logger.GetMessages(), 0)

	logger.Error("test error")
	assert.True(t, logger.HasMessage("error", "test error"))
	assert.False(t, logger.HasMessage("info", "test info"))
}

func TestMockLogger_ChildrenShareRecord(t *testing.T) {
	logger := testutil.NewMockLogger()
	child := logger.Named("pipeline").With(logging.String("run_id", "r1")).Named("train")

	child.Warn("epoch skipped", logging.Int("epoch", 3))
	logger.Info("root entry")

	warns := logger.Filter("warn", "skipped")
	require.Len(t, warns, 1)
	assert.Equal(t, "pipeline.train", warns[0].Logger)

	runID, ok := warns[0].Field("run_id")
	require.True(t, ok)
	assert.Equal(t, "r1", runID)
	epoch, ok := warns[0].Field("epoch")
	require.True(t, ok)
	assert.Equal(t, 3, epoch)

	_, ok = warns[0].Field("missing")
	assert.False(t, ok)
	assert.Len(t, logger.GetMessages(), 2)
}
