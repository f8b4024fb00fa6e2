// Package harness runs YAML scenarios against the full ingestion pipeline.
//
// A scenario declares canned source items, a tracker mode and a list of
// steps (collect, historical, ingest, retry, transition, set_status,
// fail_sync, heal_sync, reset). Each step runs against a fresh in-memory
// store through the real collector, ingestor and workflow engine. Step
// results form a trace that can be compared with a golden file, and
// assertions check the final events and processes.
//
// Tracker modes:
//
//   - recording: an in-memory syncer that records calls and can be told to
//     fail for specific external ids (fail_sync / heal_sync steps)
//   - mock: the real tracker adapter with no credentials, pointed at a
//     local server that counts any request it receives
//
// IDs come from sequence generators ("evt-N", "wf-N") and time from a step
// clock, so the same scenario always produces the same trace.
package harness
