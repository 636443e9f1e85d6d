// Package stream forwards forge lifecycle events into channels.
//
// The engine calls forge.Observer.HandleEvent synchronously. This package
// supplies adapters that move events onto channels without baking channel
// semantics into the engine.
//
// # Observer
//
// Observer implements forge.Observer. It forwards every event, and the task
// result carried by finished-task events, to buffered channels under an
// explicit overflow policy:
//   - DropNewest: never blocks the engine; drops newest items when buffers fill.
//   - DropOldest: never blocks the engine; evicts one buffered item to keep the newest.
//   - Block: blocks in HandleEvent until the consumer receives; best for tests.
//
// Drop counts are exposed via Drops.
//
// # Start
//
// Start runs a forge.Plan in a goroutine and StartService runs a
// forge.Service; both return a Handle exposing the channels. Service
// handlers call HandleEvent concurrently, which Observer supports.
package stream
