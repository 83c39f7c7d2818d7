package notification

import (
	"go.uber.org/fx"

	"github.com/studygrove/studygrove/internal/notification/repository"
	"github.com/studygrove/studygrove/internal/notification/service"
	"github.com/studygrove/studygrove/internal/tasks"
)

var Module = fx.Module("notification",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewComposer),
	fx.Provide(service.NewService),
	fx.Provide(service.NewHandlers),
	fx.Invoke(registerHandlers),
)

func registerHandlers(router *tasks.Router, h *service.Handlers) {
	router.Handle(tasks.TopicCreateNotification, h.HandleCreateNotification)
	router.Handle(tasks.TopicPushUnreadCount, h.HandlePushUnreadCount)
}
