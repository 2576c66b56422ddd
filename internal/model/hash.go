package model

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Domain prefixes for entity hashing.
// Version suffix enables future algorithm migration.
const (
	DomainIdentity = "bulkstep/identity/v1"
	DomainContent  = "bulkstep/content/v1"
)

// Hash is the content-addressable digest of an entity.
type Hash uint64

// String renders the hash as 16 hex digits.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// hashWithDomain computes SHA-256 with domain separation and folds the first
// eight bytes into a Hash.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return Hash(binary.BigEndian.Uint64(h.Sum(nil)[:8]))
}

// HashEntity computes the hash of e.
//
// A persisted entity hashes by its identity alone; fields and field values
// are ignored. A transient entity hashes by the canonical encoding of its
// projection onto fields, so field order in the argument is irrelevant and
// unset fields count as null. Naming a field the type does not declare is a
// ConfigurationError, as is hashing a transient entity with no fields.
func HashEntity(e *Entity, fields []string) (Hash, error) {
	if e == nil || e.Type == nil {
		return 0, NewConfigurationError("cannot hash an entity without a type")
	}

	if e.Persisted() {
		canonical, err := MarshalCanonical(e.ID)
		if err != nil {
			return 0, fmt.Errorf("hash %s: %w", e, err)
		}
		return hashWithDomain(DomainIdentity, canonical), nil
	}

	if len(fields) == 0 {
		return 0, &Error{
			Code:       ErrCodeConfiguration,
			Message:    "hashing a transient entity requires at least one field",
			EntityType: e.Type.Name,
		}
	}
	if err := e.Type.CheckFields(fields); err != nil {
		return 0, err
	}

	projection := make(map[string]Value, len(fields))
	for _, name := range fields {
		projection[name] = e.Get(name)
	}
	canonical, err := MarshalCanonicalObject(projection)
	if err != nil {
		return 0, fmt.Errorf("hash %s: %w", e, err)
	}
	return hashWithDomain(DomainContent, canonical), nil
}

// MustHashEntity is like HashEntity but panics on error. For tests and
// for callers that have already validated fields.
func MustHashEntity(e *Entity, fields []string) Hash {
	h, err := HashEntity(e, fields)
	if err != nil {
		panic(err)
	}
	return h
}
