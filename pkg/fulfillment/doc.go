// Package fulfillment provides the shared data model and pure lifecycle logic for
// Tally, the warehouse fulfillment coordination engine.
//
// # Overview
//
// A Checklist lists the inventory units (bales) slated for one customer shipment.
// It moves through a controlled lifecycle:
//
//	draft → confirmed → locked → modification_requested → draft (approved)
//	                                                    → locked (rejected)
//
// Items may only be added or removed in draft, and scans may only be recorded
// while locked. There is no path from locked back to draft except through an
// approved ModificationRequest, so a checklist that is being physically scanned
// can never change composition without an attributable approval.
//
// # Scan reconciliation
//
// Checklist.Scan matches a decoded code against the items in order: exact unit id,
// then display position, then manifest code (codes starting with ManifestCodePrefix).
// Unknown codes, duplicate scans and scans outside locked are reported as typed
// errors and leave the checklist untouched.
//
// # Errors
//
// Every expected failure is an *Error carrying a Kind. Use errors.Is with the
// sentinels (ErrDuplicateScan, ErrInvalidState, ...) or KindOf to branch on them.
//
// # Concurrency
//
// Types in this package are not safe for concurrent use. The engine serializes
// all mutation of a given checklist behind its own lock and hands out Clone()d
// copies to readers.
package fulfillment
