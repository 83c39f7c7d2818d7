package reconcile

import (
	"go.uber.org/fx"

	"github.com/studygrove/studygrove/internal/tasks"
)

var Module = fx.Module("reconcile",
	fx.Provide(NewReconciler),
	fx.Invoke(registerHandlers),
)

func registerHandlers(router *tasks.Router, r *Reconciler) {
	router.Handle(tasks.TopicReconcileCounters, r.HandleReconcileCounters)
}
