// Package scheduler keeps the live job schedule.
//
// A job is a named handler from the Registry plus a persisted JobDefinition
// (schedule + opaque JSON args). The Service:
//   - reconciles the in-memory schedule with the Store at startup
//   - wakes on a fixed cadence and dispatches every due job to the engine
//   - reschedules fired jobs, or retires them (memory + Store) once their
//     schedule is exhausted
//   - mediates AddJob/RemoveJob so memory and storage stay consistent
//
// Execution is fire-and-forget: handler outcome never changes scheduling.
package scheduler
