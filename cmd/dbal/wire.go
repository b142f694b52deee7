//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
)

// initializeApplication builds the Application for one CLI invocation.
func initializeApplication(path configPath, name connectionName) (*Application, func(), error) {
	wire.Build(
		provideFile,
		provideLogger,
		provideRegistry,
		provideMetrics,
		providePusher,
		provideConnection,
		provideLocker,
		provideSource,
		provideRunner,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}
