// Package model defines the entity vocabulary shared by every bulkstep
// component: entity types and their foreign keys, entity values, the explicit
// type registry, canonical encoding, content-addressed entity hashing and the
// error kinds surfaced to callers.
//
// # Identity and Hashing
//
// An Entity is persisted when it carries an identity (ID). Persisted entities
// hash by identity alone; transient entities hash by the canonical encoding of
// a chosen field subset. The two cases use different hash domains, so a
// persisted entity never collides with a transient one.
//
// Canonical encoding follows RFC 8785 conventions: object keys are ordered by
// UTF-16 code units and strings are NFC normalized. Unlike the JSON wire
// format it is only used as hash input and is never parsed back.
//
// # Registry
//
// Entity types are registered once, at process start, into a Registry that is
// passed explicitly to the dependency grapher and the cascade simulator. There
// is no package-level registry.
package model
