package repository

import "go.uber.org/fx"

// Module exposes the GORM-backed store via Fx.
var Module = fx.Options(
	fx.Provide(NewStore),
)
