// Package providers implements the provider directory contract used to enrich
// triage results with bookable care providers.
//
// Directory failures never fail the pipeline; callers degrade to an empty
// candidate list and a "no providers" message.
package providers

import (
	"context"
	"log/slog"
	"sort"

	"github.com/healthbridge/triageflow/internal/models"
)

// DefaultLimit bounds the number of candidates offered per triage result.
const DefaultLimit = 3

// Criteria narrows a provider search.
type Criteria struct {
	Specialty string
	Limit     int
}

// Directory looks up care providers for a session and resolves the ids
// carried by provider selection replies.
type Directory interface {
	FindProviders(ctx context.Context, session models.Session, criteria Criteria) ([]models.ProviderCandidate, error)
	Lookup(id string) (models.ProviderCandidate, bool)
}

var _ Directory = (*StaticDirectory)(nil)

// StaticDirectory serves a fixed provider roster, filtered by specialty and
// ordered by rating. It stands in for an external provider registry.
type StaticDirectory struct {
	roster []models.ProviderCandidate
}

// NewStaticDirectory creates a directory with the built-in roster.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{roster: defaultRoster}
}

// NewStaticDirectoryWithRoster creates a directory serving the given roster (for tests).
func NewStaticDirectoryWithRoster(roster []models.ProviderCandidate) *StaticDirectory {
	return &StaticDirectory{roster: roster}
}

var defaultRoster = []models.ProviderCandidate{
	{ID: "gp-001", Name: "Dr. Adaeze Okafor", Specialty: "general practice", Distance: 1.2, Rating: 4.8},
	{ID: "gp-002", Name: "Dr. Tunde Bakare", Specialty: "general practice", Distance: 2.9, Rating: 4.5},
	{ID: "gp-003", Name: "Dr. Fatima Bello", Specialty: "general practice", Distance: 4.1, Rating: 4.6},
	{ID: "im-001", Name: "Dr. Chinedu Eze", Specialty: "internal medicine", Distance: 3.4, Rating: 4.7},
	{ID: "im-002", Name: "Dr. Halima Yusuf", Specialty: "internal medicine", Distance: 5.0, Rating: 4.4},
	{ID: "card-001", Name: "Dr. Emeka Nwosu", Specialty: "cardiology", Distance: 6.3, Rating: 4.9},
	{ID: "card-002", Name: "Dr. Aisha Mohammed", Specialty: "cardiology", Distance: 8.7, Rating: 4.6},
	{ID: "pulm-001", Name: "Dr. Yemi Adeyemi", Specialty: "pulmonology", Distance: 5.8, Rating: 4.7},
	{ID: "gastro-001", Name: "Dr. Ngozi Obi", Specialty: "gastroenterology", Distance: 7.2, Rating: 4.5},
}

// FindProviders filters the roster by criteria. Specialty misses fall back to
// general practice so the user always sees somebody bookable.
func (d *StaticDirectory) FindProviders(ctx context.Context, session models.Session, criteria Criteria) ([]models.ProviderCandidate, error) {
	limit := criteria.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	matches := d.filter(criteria.Specialty)
	if len(matches) == 0 && criteria.Specialty != "general practice" {
		slog.Debug("StaticDirectory no specialty match, falling back to general practice",
			"specialty", criteria.Specialty, "userKey", session.UserKey)
		matches = d.filter("general practice")
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Rating > matches[j].Rating })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	slog.Debug("StaticDirectory lookup", "specialty", criteria.Specialty, "matches", len(matches))
	return matches, nil
}

func (d *StaticDirectory) filter(specialty string) []models.ProviderCandidate {
	var out []models.ProviderCandidate
	for _, p := range d.roster {
		if specialty == "" || p.Specialty == specialty {
			out = append(out, p)
		}
	}
	return out
}

// Lookup finds a roster entry by id, for resolving provider selections.
func (d *StaticDirectory) Lookup(id string) (models.ProviderCandidate, bool) {
	for _, p := range d.roster {
		if p.ID == id {
			return p, true
		}
	}
	return models.ProviderCandidate{}, false
}
