// Package domain defines the canonical records that flow through the
// ingestion pipeline.
//
// Source adapters emit RawItems. A RawItem carries exactly one
// source-specific payload variant (Bill, Action or Post) so that every
// shape is normalized before it enters the shared pipeline. The ingestor
// turns a RawItem into an Event, keyed by a derived external identity;
// the workflow engine attaches a Process and an append-only
// StatusHistoryEntry trail to it.
//
// # Identity
//
// ExternalID derivation is a fixed precedence (see DeriveExternalID):
//
//  1. structured bill number  -> "bill-<number>"
//  2. canonical URL
//  3. source-provided opaque id
//
// Items without any key material are dropped by the ingestor.
//
// # Serialization
//
// RawData is stored as canonical JSON (sorted keys, NFC-normalized strings,
// no HTML escaping) so that re-ingesting an identical item yields an
// identical content hash.
package domain
