package services

// ServiceContainer holds instances of all the application services.
// This is the main entry point for accessing service functionality and
// is used throughout the application, particularly in the handlers.
type ServiceContainer struct {
	Schedule     ScheduleSvcFacade
	Materializer MaterializerSvc
	Runner       RunnerSvc
	Events       EventSubscriber
	// References is nil when accounts and categories live in an external ledger.
	References ReferenceSvc
}
