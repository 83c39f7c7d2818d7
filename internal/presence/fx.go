package presence

import (
	"go.uber.org/fx"

	"github.com/studygrove/studygrove/internal/tasks"
)

var Module = fx.Module("presence",
	fx.Provide(NewTracker),
	fx.Provide(NewSyncer),
	fx.Invoke(registerHandlers),
)

func registerHandlers(router *tasks.Router, syncer *Syncer) {
	router.Handle(tasks.TopicSyncPresence, syncer.HandleSyncPresence)
}
