package jobs

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestRegisterShutdown_FlipsBeforeLoopsStop(t *testing.T) {
	var status *RunStatus
	var aliveAtLoopStop bool

	app := fxtest.New(t,
		fx.NopLogger,
		fx.Supply(slog.Default()),
		Module,
		// Registered like a domain loop module, ahead of RegisterShutdown.
		fx.Invoke(func(lc fx.Lifecycle, s *RunStatus) {
			status = s
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					aliveAtLoopStop = s.Alive()
					return nil
				},
			})
		}),
		fx.Invoke(RegisterShutdown),
	)

	app.RequireStart()
	assert.True(t, status.Alive())

	app.RequireStop()
	assert.False(t, status.Alive())
	assert.False(t, aliveAtLoopStop, "loops see the stopping flag when their stop hook runs")
}
