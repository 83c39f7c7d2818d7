package avatar

import (
	"context"

	"go.uber.org/fx"

	"github.com/studygrove/studygrove/internal/tasks"
)

var Module = fx.Module("avatar",
	fx.Provide(NewService),
	fx.Provide(NewHandlers),
	fx.Invoke(registerHandlers),
	fx.Invoke(bootstrapDefaults),
)

func registerHandlers(router *tasks.Router, h *Handlers) {
	router.Handle(tasks.TopicGenerateAvatarThumbnails, h.HandleGenerateThumbnails)
	router.Handle(tasks.TopicDeleteStoragePaths, h.HandleDeleteStoragePaths)
}

func bootstrapDefaults(lc fx.Lifecycle, h *Handlers) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return h.EnsureDefaultThumbnails(ctx)
		},
	})
}
