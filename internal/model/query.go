package model

// ResolutionQuery identifies the artist reference to resolve. At least one
// of RawText and ExternalID must be set; supplying both strengthens
// matching (the identifier wins outright when it matches).
type ResolutionQuery struct {
	RawText       string `json:"raw_text,omitempty"`
	ExternalID    string `json:"external_id,omitempty"`
	AuthorityHint string `json:"authority_hint,omitempty"`
}

// Validate checks the query carries something to resolve.
func (q ResolutionQuery) Validate() error {
	if q.RawText == "" && q.ExternalID == "" {
		return ErrInvalidQuery
	}
	if q.ExternalID != "" && q.AuthorityHint == "" {
		// An external id is meaningless without knowing which authority
		// issued it.
		return ErrInvalidQuery
	}
	return nil
}

// MatchRule names the rule that produced a match.
type MatchRule string

const (
	RuleExternalID   MatchRule = "external_id"
	RulePrimaryName  MatchRule = "primary_name"
	RuleCreditedName MatchRule = "credited_name"
	RuleAlias        MatchRule = "alias"
	RuleCache        MatchRule = "cache"
)

// MatchedVia records the provenance of a resolution.
type MatchedVia struct {
	Authority string    `json:"authority"`
	Rule      MatchRule `json:"rule"`
}

// ResolutionResult is a confident resolution.
type ResolutionResult struct {
	Artist     Artist     `json:"artist"`
	Confidence float64    `json:"confidence"`
	MatchedVia MatchedVia `json:"matched_via"`
}

// UnresolvedReason explains why no confident match was returned.
type UnresolvedReason string

const (
	// ReasonNoConfidentMatch means sources answered but nothing scored at
	// or above the configured minimum confidence.
	ReasonNoConfidentMatch UnresolvedReason = "no_confident_match"
	// ReasonSourcesUnavailable means every configured authority was
	// unreachable (breaker open or transport failure).
	ReasonSourcesUnavailable UnresolvedReason = "sources_unavailable"
	// ReasonInvalidQuery means the query itself was unusable.
	ReasonInvalidQuery UnresolvedReason = "invalid_query"
)

// Suggestion is a below-threshold candidate surfaced with an Unresolved
// outcome so callers can prompt for a more specific name.
type Suggestion struct {
	Name       string  `json:"name"`
	Authority  string  `json:"authority"`
	Confidence float64 `json:"confidence"`
}

// Unresolved is the no-match outcome. It is a normal answer, not an error.
type Unresolved struct {
	Reason      UnresolvedReason `json:"reason"`
	Suggestions []Suggestion     `json:"suggestions,omitempty"`
}

// Outcome is the union returned by Resolve: exactly one of Result and
// Unresolved is non-nil.
type Outcome struct {
	Result     *ResolutionResult `json:"result,omitempty"`
	Unresolved *Unresolved       `json:"unresolved,omitempty"`
}

// Resolved reports whether the outcome carries a confident match.
func (o Outcome) Resolved() bool {
	return o.Result != nil
}
