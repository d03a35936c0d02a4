// Package policy resolves per-venue enrichment policies from the loaded
// configuration. Resolution is a pure lookup over config that was already
// validated at load time; an unknown venue is fatal for that event.
package policy

import (
	"fmt"

	"curator/internal/config"
)

// Policy is the effective, fully-resolved policy for one venue.
type Policy struct {
	ClassificationEnabled bool
	AssumedCategory       string // "" when the venue has no fixed category
	EnrichmentEnabled     bool
	AllowCitations        bool
}

// ConfigPolicyError reports an unknown or malformed venue policy.
type ConfigPolicyError struct {
	Venue  string
	Reason string
}

func (e *ConfigPolicyError) Error() string {
	return fmt.Sprintf("venue policy %q: %s", e.Venue, e.Reason)
}

// Resolver resolves venue keys to policies. Read-only after construction.
type Resolver struct {
	venues map[string]config.VenueConfig
}

// NewResolver builds a resolver over the loaded configuration.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{venues: cfg.Venues}
}

// Resolve returns the policy for venueKey. There is no silent defaulting:
// an absent venue or a policy missing its enabled flags is an error.
func (r *Resolver) Resolve(venueKey string) (Policy, error) {
	vc, ok := r.venues[venueKey]
	if !ok {
		return Policy{}, &ConfigPolicyError{Venue: venueKey, Reason: "venue is not configured"}
	}
	if vc.Classification.Enabled == nil {
		return Policy{}, &ConfigPolicyError{Venue: venueKey, Reason: "classification.enabled is missing"}
	}
	if vc.Enrichment.Enabled == nil {
		return Policy{}, &ConfigPolicyError{Venue: venueKey, Reason: "enrichment.enabled is missing"}
	}
	return Policy{
		ClassificationEnabled: *vc.Classification.Enabled,
		AssumedCategory:       vc.Classification.AssumedEventCategory,
		EnrichmentEnabled:     *vc.Enrichment.Enabled,
		AllowCitations:        vc.Enrichment.AllowCitations,
	}, nil
}
