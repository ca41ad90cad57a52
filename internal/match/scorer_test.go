package match

import (
	"testing"

	"github.com/tunegate/resolver/internal/model"
	"github.com/tunegate/resolver/internal/normalize"
)

var testPriorities = map[string]int{
	"spotify":     1,
	"deezer":      2,
	"musicbrainz": 3,
}

func newTestScorer() *Scorer {
	return NewScorer(DefaultConfig(), testPriorities)
}

func TestScore_PrimaryNameExact(t *testing.T) {
	s := newTestScorer()
	query := model.ResolutionQuery{RawText: "the beatles"}
	nq := normalize.New(query.RawText)

	c := s.Score(nq, query, model.RawRecord{
		Authority: "spotify",
		ID:        "3WrFJ7ztbogyGnTHbHJFl2",
		Name:      "The Beatles",
	})

	// Exact primary-name match at full tier weight.
	if c.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", c.Confidence)
	}
	if c.Rule != model.RulePrimaryName {
		t.Errorf("rule = %s, want primary_name", c.Rule)
	}
	if c.Record.Name != "The Beatles" {
		t.Errorf("record name = %q", c.Record.Name)
	}
}

func TestScore_ExternalIDOverride(t *testing.T) {
	s := newTestScorer()
	// Renamed act: name wildly mismatched, id identical.
	query := model.ResolutionQuery{
		RawText:       "mos def",
		ExternalID:    "artist-999",
		AuthorityHint: "spotify",
	}
	nq := normalize.New(query.RawText)

	c := s.Score(nq, query, model.RawRecord{
		Authority: "spotify",
		ID:        "artist-999",
		Name:      "Yasiin Bey",
	})
	if c.Confidence != 1.0 {
		t.Errorf("id override confidence = %v, want 1.0", c.Confidence)
	}
	if c.Rule != model.RuleExternalID {
		t.Errorf("rule = %s, want external_id", c.Rule)
	}

	// Same id at a different authority gets no override.
	other := s.Score(nq, query, model.RawRecord{
		Authority: "deezer",
		ID:        "artist-999",
		Name:      "Yasiin Bey",
	})
	if other.Rule == model.RuleExternalID {
		t.Error("id override must be scoped to the hinted authority")
	}
}

func TestScore_TierWeights(t *testing.T) {
	s := newTestScorer()
	query := model.ResolutionQuery{RawText: "mf doom"}
	nq := normalize.New(query.RawText)

	rec := model.RawRecord{
		Authority: "musicbrainz",
		ID:        "mbid-doom",
		Name:      "Daniel Dumile",
		Aliases: []model.RawAlias{
			{Name: "MF DOOM", Kind: model.AliasKindCredited},
			{Name: "metal face", Kind: model.AliasKindOther},
		},
	}

	c := s.Score(nq, query, rec)
	if c.Rule != model.RuleCreditedName {
		t.Errorf("rule = %s, want credited_name", c.Rule)
	}
	want := DefaultConfig().Weights.Credited // exact name, credited tier
	if c.Confidence != want {
		t.Errorf("confidence = %v, want %v", c.Confidence, want)
	}
	if c.MatchedName != "MF DOOM" {
		t.Errorf("matched name = %q", c.MatchedName)
	}
}

func TestScore_ConfidenceBounds(t *testing.T) {
	s := NewScorer(Config{
		MinConfidence: 0.5,
		Weights:       TierWeights{Primary: 1.5, Credited: 0.85, Other: 0.6}, // misconfigured > 1
	}, testPriorities)
	query := model.ResolutionQuery{RawText: "portishead"}
	nq := normalize.New(query.RawText)

	c := s.Score(nq, query, model.RawRecord{Authority: "spotify", ID: "1", Name: "Portishead"})
	if c.Confidence < 0 || c.Confidence > 1 {
		t.Errorf("confidence %v out of [0,1]", c.Confidence)
	}
}

func TestRank_TieBreakAuthorityPriority(t *testing.T) {
	s := newTestScorer()
	query := model.ResolutionQuery{RawText: "radiohead"}
	nq := normalize.New(query.RawText)

	recs := []model.RawRecord{
		{Authority: "musicbrainz", ID: "mb-1", Name: "Radiohead"},
		{Authority: "spotify", ID: "sp-1", Name: "Radiohead"},
	}
	ranked := s.Rank(nq, query, recs)
	if ranked[0].Record.Authority != "spotify" {
		t.Errorf("tie should go to higher-priority authority, got %s", ranked[0].Record.Authority)
	}
}

func TestRank_TieBreakRichness(t *testing.T) {
	s := newTestScorer()
	query := model.ResolutionQuery{RawText: "low"}
	nq := normalize.New(query.RawText)

	recs := []model.RawRecord{
		{Authority: "spotify", ID: "sparse", Name: "Low"},
		{
			Authority:    "spotify",
			ID:           "rich",
			Name:         "Low",
			ExternalRefs: map[string]string{"musicbrainz": "mb-low"},
			Metadata:     map[string]any{"genres": []string{"slowcore"}},
		},
	}
	ranked := s.Rank(nq, query, recs)
	if ranked[0].Record.ID != "rich" {
		t.Errorf("tie at same authority should go to richer record, got %s", ranked[0].Record.ID)
	}
}

func TestBest_BelowThresholdReturnsSuggestions(t *testing.T) {
	s := newTestScorer()
	query := model.ResolutionQuery{RawText: "xylophone dream factory"}
	nq := normalize.New(query.RawText)

	best, suggestions := s.Best(nq, query, []model.RawRecord{
		{Authority: "spotify", ID: "1", Name: "Xylo"},
		{Authority: "deezer", ID: "2", Name: "Dream Theater"},
	})
	if best != nil {
		t.Fatalf("expected no confident match, got %+v", best)
	}
	if len(suggestions) == 0 {
		t.Error("expected below-threshold suggestions")
	}
	for _, sug := range suggestions {
		if sug.Confidence >= s.MinConfidence() {
			t.Errorf("suggestion %q confidence %v should be below threshold", sug.Name, sug.Confidence)
		}
	}
}

func TestBest_EmptyCandidates(t *testing.T) {
	s := newTestScorer()
	query := model.ResolutionQuery{RawText: "anything"}
	best, suggestions := s.Best(normalize.New(query.RawText), query, nil)
	if best != nil || suggestions != nil {
		t.Error("no candidates should yield nil, nil")
	}
}

func TestScore_StrippedVariantFallback(t *testing.T) {
	s := newTestScorer()
	query := model.ResolutionQuery{RawText: "the allman brothers band"}
	nq := normalize.New(query.RawText)

	c := s.Score(nq, query, model.RawRecord{
		Authority: "spotify",
		ID:        "ab",
		Name:      "Allman Brothers",
	})
	if c.Confidence != 1.0 {
		t.Errorf("stripped variant should match exactly, confidence = %v", c.Confidence)
	}
}
