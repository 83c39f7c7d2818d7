package tasks

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("tasks",
	fx.Provide(newZapAdapter),
	fx.Provide(NewDedupLease),
	fx.Provide(NewPubSub),
	fx.Provide(NewEnqueuer),
	fx.Provide(NewRouter),
)

// RunRouter starts the task consumer once every handler registration
// invoke has run.
func RunRouter(lc fx.Lifecycle, router *Router, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				if err := router.Run(runCtx); err != nil {
					logger.Error("task router stopped", zap.Error(err))
				}
			}()
			select {
			case <-router.Running():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return router.Close()
		},
	})
}
