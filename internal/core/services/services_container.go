package services

import (
	"time"

	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
)

// ContainerDeps carries what the services need beyond the repositories.
type ContainerDeps struct {
	Runner   RunnerConfig
	Notifier portssvc.Notifier
	Events   interface {
		portssvc.EventPublisher
		portssvc.EventSubscriber
	}
	Clock func() time.Time
}

// NewServiceContainer creates a new service container with properly initialized dependencies
func NewServiceContainer(repos portsrepo.RepositoryProvider, deps ContainerDeps) *portssvc.ServiceContainer {
	container := &portssvc.ServiceContainer{}

	matOpts := []MaterializerOption{WithReferenceChecker(repos.References)}
	schedOpts := []ScheduleServiceOption{WithScheduleLocation(deps.Runner.Location)}
	runOpts := []RunnerOption{}
	if deps.Events != nil {
		matOpts = append(matOpts, WithMaterializerEvents(deps.Events))
		schedOpts = append(schedOpts, WithScheduleEvents(deps.Events))
		runOpts = append(runOpts, WithRunnerEvents(deps.Events))
		container.Events = deps.Events
	}
	if deps.Clock != nil {
		matOpts = append(matOpts, WithMaterializerClock(deps.Clock))
		schedOpts = append(schedOpts, WithScheduleClock(deps.Clock))
		runOpts = append(runOpts, WithRunnerClock(deps.Clock))
	}
	if deps.Notifier != nil {
		runOpts = append(runOpts, WithNotifier(deps.Notifier))
	}

	// The materializer is shared so manual and automatic postings take the same path.
	container.Materializer = NewMaterializer(repos.ScheduleRepo, repos.LedgerRepo, matOpts...)
	container.Schedule = NewScheduleService(repos.ScheduleRepo, container.Materializer, schedOpts...)
	container.Runner = NewRunner(deps.Runner, repos.ScheduleRepo, container.Materializer, runOpts...)
	if repos.Registry != nil {
		container.References = NewReferenceService(repos.Registry)
	}

	return container
}
