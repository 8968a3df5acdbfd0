// Package cache stores compiled criterion trees keyed by a content
// fingerprint of the trial and its criteria text, so a trial's eligibility
// criteria are compiled once and reused until the text changes or the entry
// expires.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/eligibility/internal/criterion"
)

// Entry is one cached compilation. CompiledTree holds the validated
// top-level criterion list exactly as the Compiler produced it.
type Entry struct {
	ID           uuid.UUID         `json:"id"`
	Fingerprint  string            `json:"fingerprint"`
	TrialID      string            `json:"trial_id"`
	CriteriaText string            `json:"criteria_text"`
	CompiledTree []*criterion.Node `json:"compiled_tree"`
	CreatedAt    time.Time         `json:"created_at"`
	TTL          time.Duration     `json:"ttl"`
}

// Expired reports whether the entry's TTL has elapsed as of now.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Store is the narrow interface the Compiler depends on. Implementations
// are an in-process map (tests, single-node deployments) and a Postgres
// table (survives restarts). Expiry is lazy: Get deletes and misses on an
// expired entry rather than relying on a background sweeper.
//
// Writes are idempotent and atomic at the entry level; concurrent
// compilations of the same fingerprint may both write, and the last writer
// wins with an identical tree by construction.
type Store interface {
	// Get returns the entry for fingerprint, or (nil, nil) on a miss.
	// An expired entry is treated as a miss.
	Get(ctx context.Context, fingerprint string) (*Entry, error)
	// Put stores or replaces the entry for entry.Fingerprint.
	Put(ctx context.Context, entry *Entry) error
	// Delete removes the entry for fingerprint; deleting an absent
	// fingerprint is not an error.
	Delete(ctx context.Context, fingerprint string) error
}

// Fingerprint computes the content-address for a (trialID, criteriaText)
// pair. A separator between the two parts keeps ("ab","c") and ("a","bc")
// distinct.
func Fingerprint(trialID, criteriaText string) string {
	h := sha256.New()
	h.Write([]byte(trialID))
	h.Write([]byte{0})
	h.Write([]byte(criteriaText))
	return hex.EncodeToString(h.Sum(nil))
}
