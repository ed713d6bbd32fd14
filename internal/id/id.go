// Package id generates the prefixed identifiers that tag passes in logs and in the claim table.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// PassPrefix tags identifiers of a single discovery/schedule pass.
const PassPrefix = "pass"

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "pass-V1StGXR8_Z5jdHi6B-myT").
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// NewPass returns a fresh pass identifier.
func NewPass() (string, error) {
	return Generate(PassPrefix)
}
