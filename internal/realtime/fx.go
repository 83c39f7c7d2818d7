package realtime

import (
	"go.uber.org/fx"

	notifservice "github.com/studygrove/studygrove/internal/notification/service"
	"github.com/studygrove/studygrove/internal/presence"
)

var Module = fx.Module("realtime",
	fx.Provide(NewHub),
	fx.Provide(NewHandler),
	fx.Provide(func(t *presence.Tracker) PresenceRefresher { return t }),
	fx.Provide(func(h *Hub) notifservice.Broadcaster { return h }),
)
