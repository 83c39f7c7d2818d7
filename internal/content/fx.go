package content

import (
	"go.uber.org/fx"

	"github.com/studygrove/studygrove/internal/content/repository"
	"github.com/studygrove/studygrove/internal/content/service"
)

var Module = fx.Module("content",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
