// Package match scores candidate records from external authorities
// against a normalized query and picks the winner.
package match

import (
	"sort"

	"github.com/agext/levenshtein"

	"github.com/tunegate/resolver/internal/model"
	"github.com/tunegate/resolver/internal/normalize"
)

// Candidate is a scored record.
type Candidate struct {
	Record      model.RawRecord
	Confidence  float64
	Rule        model.MatchRule
	MatchedName string
}

// Scorer ranks candidates using configured tier weights and authority
// priorities. Lower priority number means more authoritative.
type Scorer struct {
	cfg        Config
	priorities map[string]int
}

// NewScorer creates a scorer. priorities maps authority name to its
// configured rank; unknown authorities sort last.
func NewScorer(cfg Config, priorities map[string]int) *Scorer {
	return &Scorer{cfg: cfg, priorities: priorities}
}

// MinConfidence exposes the configured floor.
func (s *Scorer) MinConfidence() float64 {
	return s.cfg.MinConfidence
}

// Score computes the confidence of a single candidate.
//
// An external-id equality with the queried authority is an exact-identity
// override: confidence is forced to 1.0 regardless of how different the
// names look (renamed acts keep their platform ids).
func (s *Scorer) Score(nq normalize.Query, query model.ResolutionQuery, rec model.RawRecord) Candidate {
	if query.ExternalID != "" && query.AuthorityHint == rec.Authority && query.ExternalID == rec.ID {
		return Candidate{
			Record:      rec,
			Confidence:  1.0,
			Rule:        model.RuleExternalID,
			MatchedName: rec.Name,
		}
	}

	best := Candidate{Record: rec}
	consider := func(name string, kind model.AliasKind) {
		sim := s.nameSimilarity(nq, name)
		conf := clamp01(sim * s.cfg.Weights.forKind(string(kind)))
		if conf > best.Confidence {
			best.Confidence = conf
			best.MatchedName = name
			best.Rule = ruleForKind(kind)
		}
	}

	consider(rec.Name, model.AliasKindPrimary)
	for _, alias := range rec.Aliases {
		consider(alias.Name, alias.Kind)
	}

	return best
}

// Rank scores every candidate and orders them best-first. Ties break by
// authority priority, then by record richness.
func (s *Scorer) Rank(nq normalize.Query, query model.ResolutionQuery, recs []model.RawRecord) []Candidate {
	candidates := make([]Candidate, 0, len(recs))
	for _, rec := range recs {
		candidates = append(candidates, s.Score(nq, query, rec))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		pa, pb := s.priority(a.Record.Authority), s.priority(b.Record.Authority)
		if pa != pb {
			return pa < pb
		}
		return a.Record.Richness() > b.Record.Richness()
	})

	return candidates
}

// Best returns the winning candidate if it clears the confidence floor,
// otherwise nil plus below-threshold suggestions.
func (s *Scorer) Best(nq normalize.Query, query model.ResolutionQuery, recs []model.RawRecord) (*Candidate, []model.Suggestion) {
	ranked := s.Rank(nq, query, recs)
	if len(ranked) == 0 {
		return nil, nil
	}

	if ranked[0].Confidence >= s.cfg.MinConfidence {
		winner := ranked[0]
		return &winner, nil
	}

	limit := s.cfg.MaxSuggestions
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	suggestions := make([]model.Suggestion, 0, limit)
	for _, c := range ranked[:limit] {
		if c.Confidence <= 0 {
			continue
		}
		suggestions = append(suggestions, model.Suggestion{
			Name:       c.Record.Name,
			Authority:  c.Record.Authority,
			Confidence: c.Confidence,
		})
	}
	return nil, suggestions
}

// nameSimilarity is the normalized edit-distance similarity between the
// query and a candidate name, taking the better of the primary key and
// the stripped fallback variant.
func (s *Scorer) nameSimilarity(nq normalize.Query, name string) float64 {
	key := normalize.Key(name)
	if key == "" {
		return 0
	}

	best := 0.0
	for _, variant := range nq.Variants() {
		if variant == "" {
			continue
		}
		if sim := levenshtein.Similarity(variant, key, nil); sim > best {
			best = sim
		}
	}
	return best
}

func (s *Scorer) priority(authority string) int {
	if p, ok := s.priorities[authority]; ok {
		return p
	}
	return int(^uint(0) >> 1) // unknown authorities rank last
}

func ruleForKind(kind model.AliasKind) model.MatchRule {
	switch kind {
	case model.AliasKindPrimary:
		return model.RulePrimaryName
	case model.AliasKindCredited:
		return model.RuleCreditedName
	default:
		return model.RuleAlias
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
