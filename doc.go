// Package forge is a build-automation engine: named tasks with lifecycle
// hooks, a pipeline that resolves and runs them in dependency order, and a
// service that runs tasks in response to events.
//
// # Tasks
//
// A Task is a body plus dependency names and hooks. A TaskRunner runs one
// task through preconditions, before hooks, setup, the body, teardown,
// postconditions and after hooks, and captures the outcome in a TaskResult.
// Failures and panics never escape the runner.
//
// # Pipelines
//
// A Pipeline is a registry of tasks. Pipeline.Build resolves requested names
// into a Plan: the requested tasks and their registered dependencies,
// transitively, in a deterministic topological order where independent tasks
// keep their registration order. Unknown requested names are reported rather
// than rejected; a dependency cycle is an error.
//
// Plan.Run executes tasks strictly one at a time. The first failure of a
// task that is not continue-on-error stops the run.
//
// # Services
//
// A Service runs EventHandlers concurrently. Each handler iterates an
// event.Source and runs its task once per occurrence. Handlers are isolated:
// one failing does not stop the others.
//
// # Configuration
//
// Every run shares one *config.Config between its tasks (and, for a Service,
// between its handlers). The store is safe for concurrent use. The running
// pipeline publishes its state in the "execution" section; see
// ExecutionState.
//
// # Observers
//
// The engine emits events by calling Observer.HandleEvent(Event):
//
//   - A pipeline run emits from one goroutine, in order.
//   - For a given task run, EventTaskStarted happens-before
//     EventTaskFinished. A task skipped by a pipeline hook only gets
//     EventTaskFinished.
//   - A Service calls observers concurrently from its handlers.
//   - If an Observer blocks, it slows execution; the pkg/stream package
//     provides adapters with explicit overflow policies.
package forge
