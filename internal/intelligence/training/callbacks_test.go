package training

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
)

type CallbackSuite struct {
	suite.Suite
	model *scriptedModel
	run   *Run
}

func (s *CallbackSuite) SetupTest() {
	s.model = newScriptedModel(1)
	s.run = &Run{ID: "test", Model: s.model, Logger: logging.NewNopLogger()}
}

func (s *CallbackSuite) feed(cb Callback, losses ...float64) {
	s.Require().NoError(cb.OnTrainBegin(s.run))
	for i, l := range losses {
		s.model.weight = float64(i + 1)
		s.Require().NoError(cb.OnEpochEnd(s.run, EpochLogs{Epoch: i + 1, ValLoss: l}))
	}
}

func (s *CallbackSuite) TestReduceLR_MinDelta() {
	cb := NewReduceLROnPlateau(ReduceLRConfig{Factor: 0.5, Patience: 2, MinDelta: 0.1, MinLR: 1e-6})
	// improvements smaller than MinDelta count as a plateau
	s.feed(cb, 1.0, 0.95, 0.91)
	s.InDelta(5e-4, s.model.lr, 1e-15)
}

func (s *CallbackSuite) TestReduceLR_FloorAtMinLR() {
	s.model.lr = 3e-6
	cb := NewReduceLROnPlateau(ReduceLRConfig{Factor: 0.1, Patience: 1, MinLR: 1e-6})
	s.feed(cb, 1, 1, 1, 1)
	s.Equal(1e-6, s.model.lr)
}

func (s *CallbackSuite) TestReduceLR_Cooldown() {
	cb := NewReduceLROnPlateau(ReduceLRConfig{Factor: 0.5, Patience: 1, MinLR: 0, Cooldown: 2})
	s.feed(cb, 1, 1)
	s.InDelta(5e-4, s.model.lr, 1e-15)
	s.feed2(cb, 1, 1)
	s.InDelta(5e-4, s.model.lr, 1e-15, "no reduction during cooldown")
	s.feed2(cb, 1)
	s.InDelta(2.5e-4, s.model.lr, 1e-15)
}

// feed2 continues an in-progress fit.
func (s *CallbackSuite) feed2(cb Callback, losses ...float64) {
	for _, l := range losses {
		s.Require().NoError(cb.OnEpochEnd(s.run, EpochLogs{ValLoss: l}))
	}
}

func (s *CallbackSuite) TestCheckpoint_Strict() {
	cb := NewModelCheckpoint("best.npz")
	s.feed(cb, 0.5, 0.5, 0.4, 0.6)
	s.Equal(2, cb.Saves())
	s.Equal([]float64{1, 3}, s.model.saved)
}

func (s *CallbackSuite) TestEarlyStopping_WithoutRestore() {
	cb := NewEarlyStopping(EarlyStoppingConfig{Patience: 2})
	s.feed(cb, 1, 0.5, 0.7, 0.6)
	s.True(s.run.StopTraining)
	s.Equal(2, cb.BestEpoch())
	s.Zero(s.model.restoredTo)
}

func (s *CallbackSuite) TestEarlyStopping_NeverOnFirstEpoch() {
	cb := NewEarlyStopping(EarlyStoppingConfig{Patience: 0, RestoreBest: true})
	s.feed(cb, 1)
	s.False(s.run.StopTraining)
}

func (s *CallbackSuite) TestEarlyStopping_WorseningLossIsNoImprovement() {
	cb := NewEarlyStopping(EarlyStoppingConfig{Patience: 20, MinDelta: 0.1, RestoreBest: true})
	losses := make([]float64, 21)
	for i := range losses {
		losses[i] = 1.0 + 0.05*float64(i)
	}
	s.feed(cb, losses[:20]...)
	s.False(s.run.StopTraining)
	s.Equal(1, cb.BestEpoch())

	s.model.weight = 21
	s.Require().NoError(cb.OnEpochEnd(s.run, EpochLogs{Epoch: 21, ValLoss: losses[20]}))
	s.True(s.run.StopTraining)
	s.Equal(1, cb.BestEpoch())
	s.Equal(1.0, s.model.restoredTo)
}

func (s *CallbackSuite) TestEarlyStopping_MinDeltaRequiresLargeEnoughDrop() {
	cb := NewEarlyStopping(EarlyStoppingConfig{Patience: 5, MinDelta: 0.1})
	s.feed(cb, 1.0, 0.95, 0.85)
	s.Equal(3, cb.BestEpoch(), "0.85 is more than MinDelta below 1.0")
	s.feed2(cb, 0.8)
	s.Equal(3, cb.BestEpoch())
}

func TestCallbackSuite(t *testing.T) {
	suite.Run(t, new(CallbackSuite))
}
