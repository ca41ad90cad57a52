// Package resolver orchestrates a resolution: cache check, guarded
// authority queries in priority order, scoring, persistence, and
// best-effort enrichment. Transient source failures never surface to the
// caller as errors; the worst answer is an Unresolved outcome.
package resolver

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tunegate/resolver/internal/authority"
	"github.com/tunegate/resolver/internal/match"
	"github.com/tunegate/resolver/internal/model"
	"github.com/tunegate/resolver/internal/normalize"
	"github.com/tunegate/resolver/internal/store"
)

// Recorder receives resolution events for status reporting. Implementations
// must be safe for concurrent use.
type Recorder interface {
	RecordOutcome(resolved bool, rule model.MatchRule)
	RecordCacheHit(hit bool)
	RecordAuthorityFailure(authority string)
}

type noopRecorder struct{}

func (noopRecorder) RecordOutcome(bool, model.MatchRule) {}
func (noopRecorder) RecordCacheHit(bool)                 {}
func (noopRecorder) RecordAuthorityFailure(string)       {}

// Resolver resolves artist references to canonical entities.
type Resolver struct {
	registry    *authority.Registry
	scorer      *match.Scorer
	store       store.Store
	recorder    Recorder
	flights     *flightGroup
	searchLimit int
	enrich      bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRecorder attaches a status recorder.
func WithRecorder(r Recorder) Option {
	return func(res *Resolver) { res.recorder = r }
}

// WithSearchLimit caps how many candidates each authority search returns.
func WithSearchLimit(n int) Option {
	return func(res *Resolver) { res.searchLimit = n }
}

// WithEnrichment toggles post-accept secondary enrichment.
func WithEnrichment(enabled bool) Option {
	return func(res *Resolver) { res.enrich = enabled }
}

// New creates a Resolver.
func New(registry *authority.Registry, scorer *match.Scorer, st store.Store, opts ...Option) *Resolver {
	r := &Resolver{
		registry:    registry,
		scorer:      scorer,
		store:       st,
		recorder:    noopRecorder{},
		flights:     newFlightGroup(),
		searchLimit: 5,
		enrich:      true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve resolves a single query. The returned error is reserved for
// caller mistakes (context cancellation); source trouble and no-match
// conditions come back as Unresolved outcomes.
func (r *Resolver) Resolve(ctx context.Context, query model.ResolutionQuery) (model.Outcome, error) {
	if err := query.Validate(); err != nil {
		out := unresolved(model.ReasonInvalidQuery, nil)
		r.recorder.RecordOutcome(false, "")
		return out, nil
	}

	nq := normalize.New(query.RawText)
	key := flightKey(nq, query)

	if out, ok := r.checkCache(ctx, key); ok {
		r.recorder.RecordCacheHit(true)
		r.recorder.RecordOutcome(out.Resolved(), model.RuleCache)
		return out, nil
	}
	r.recorder.RecordCacheHit(false)

	out, err := r.flights.do(ctx, key, func(ctx context.Context) (model.Outcome, error) {
		return r.resolveUncached(ctx, key, nq, query)
	})
	if err != nil {
		return model.Outcome{}, err
	}

	rule := model.MatchRule("")
	if out.Resolved() {
		rule = out.Result.MatchedVia.Rule
	}
	r.recorder.RecordOutcome(out.Resolved(), rule)
	return out, nil
}

// ResolveMany resolves queries concurrently, preserving input order. Each
// element carries its own outcome; a context error aborts the batch.
func (r *Resolver) ResolveMany(ctx context.Context, queries []model.ResolutionQuery, concurrency int) ([]model.Outcome, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	outcomes := make([]model.Outcome, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			out, err := r.Resolve(ctx, q)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// flightKey is the dedup and cache key. External-id queries key on the
// identifier; free-text queries key on the normalized form.
func flightKey(nq normalize.Query, query model.ResolutionQuery) string {
	if query.ExternalID != "" {
		return "id:" + query.AuthorityHint + ":" + query.ExternalID
	}
	return nq.Key
}

func (r *Resolver) checkCache(ctx context.Context, key string) (model.Outcome, bool) {
	cached, err := r.store.GetCachedResolution(ctx, key)
	if err != nil {
		zap.L().Warn("resolution cache read failed", zap.Error(err))
		return model.Outcome{}, false
	}
	if cached == nil {
		return model.Outcome{}, false
	}

	artist, err := r.store.GetCanonical(ctx, cached.ArtistID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("cached artist fetch failed", zap.Error(err))
		}
		return model.Outcome{}, false
	}

	return model.Outcome{Result: &model.ResolutionResult{
		Artist:     *artist,
		Confidence: cached.Confidence,
		MatchedVia: model.MatchedVia{Authority: cached.Authority, Rule: model.RuleCache},
	}}, true
}

func (r *Resolver) resolveUncached(ctx context.Context, key string, nq normalize.Query, query model.ResolutionQuery) (model.Outcome, error) {
	// A known external id resolves from the store without touching any
	// authority.
	if query.ExternalID != "" {
		artist, err := r.store.GetByExternalID(ctx, query.AuthorityHint, query.ExternalID)
		if err == nil {
			return r.accept(ctx, key, artist, match.Candidate{
				Confidence: 1.0,
				Rule:       model.RuleExternalID,
			}, query.AuthorityHint), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("external id lookup failed", zap.Error(err))
		}
	}

	records, answered := r.gatherCandidates(ctx, nq, query)

	winner, suggestions := r.scorer.Best(nq, query, records)
	if winner == nil {
		if answered == 0 {
			return unresolved(model.ReasonSourcesUnavailable, nil), nil
		}
		return unresolved(model.ReasonNoConfidentMatch, suggestions), nil
	}

	artist, err := r.persistWinner(ctx, *winner)
	if err != nil {
		zap.L().Error("persisting resolution failed", zap.Error(err))
		// The match itself is still good; answer from the record.
		artist = artistFromRecord(winner.Record)
	}

	return r.accept(ctx, key, artist, *winner, winner.Record.Authority), nil
}

// gatherCandidates queries authorities most authoritative first and stops
// early once a candidate clears the confidence floor. It returns the
// collected records and how many authorities gave a usable answer.
func (r *Resolver) gatherCandidates(ctx context.Context, nq normalize.Query, query model.ResolutionQuery) ([]model.RawRecord, int) {
	var (
		records  []model.RawRecord
		answered int
	)

	for _, a := range r.registry.InPriorityOrder() {
		recs, ok := r.queryAuthority(ctx, a, query)
		if ok {
			answered++
		}
		records = append(records, recs...)

		ranked := r.scorer.Rank(nq, query, records)
		if len(ranked) > 0 && ranked[0].Confidence >= r.scorer.MinConfidence() {
			break
		}
	}
	return records, answered
}

func (r *Resolver) queryAuthority(ctx context.Context, a authority.Authority, query model.ResolutionQuery) ([]model.RawRecord, bool) {
	var (
		records  []model.RawRecord
		answered bool
	)

	// A hinted id is looked up directly on its issuing authority; the
	// record it returns is the strongest possible candidate there.
	if query.ExternalID != "" && query.AuthorityHint == a.Name() {
		rec, err := a.Lookup(ctx, query.ExternalID)
		switch {
		case err != nil:
			r.reportAuthorityError(a.Name(), err)
			answered = errors.Is(err, model.ErrMalformedResponse)
		case rec != nil:
			records = append(records, *rec)
			answered = true
		default:
			answered = true
		}
	}

	if query.RawText != "" {
		recs, err := a.Search(ctx, query.RawText, r.searchLimit)
		if err != nil {
			r.reportAuthorityError(a.Name(), err)
			if errors.Is(err, model.ErrMalformedResponse) {
				answered = true
			}
		} else {
			answered = true
		}
		records = append(records, recs...)
	}

	return records, answered
}

func (r *Resolver) reportAuthorityError(name string, err error) {
	if errors.Is(err, model.ErrMalformedResponse) {
		authority.LogMalformed(name, err)
		return
	}
	r.recorder.RecordAuthorityFailure(name)
	zap.L().Warn("authority query failed",
		zap.String("authority", name),
		zap.Error(err),
	)
}

// persistWinner folds the winning record into the canonical store:
// an existing entity claiming the record's external id wins, then a
// normalized-name match, then a fresh entity.
func (r *Resolver) persistWinner(ctx context.Context, winner match.Candidate) (*model.Artist, error) {
	artist, err := r.store.GetByExternalID(ctx, winner.Record.Authority, winner.Record.ID)
	if errors.Is(err, store.ErrNotFound) {
		artist, err = r.store.FindByName(ctx, winner.Record.Name)
	}
	if errors.Is(err, store.ErrNotFound) {
		artist = artistFromRecord(winner.Record)
		err = nil
	}
	if err != nil {
		return nil, err
	}

	mergeRecordIntoArtist(artist, winner.Record)

	if r.enrich {
		r.enrichArtist(ctx, artist, winner.Record)
	}

	if err := r.store.Upsert(ctx, artist); err != nil {
		return nil, err
	}
	return artist, nil
}

// enrichArtist backfills aliases and metadata from the first secondary
// authority, preferring a cross-identifier lookup over a name search.
// Failures are logged and ignored; enrichment never changes the match.
func (r *Resolver) enrichArtist(ctx context.Context, artist *model.Artist, primary model.RawRecord) {
	for _, a := range r.registry.InPriorityOrder() {
		if a.Name() == primary.Authority {
			continue
		}

		rec, err := r.secondaryRecord(ctx, a, artist, primary)
		if err != nil {
			zap.L().Debug("enrichment query failed",
				zap.String("authority", a.Name()),
				zap.Error(err),
			)
			return
		}
		if rec != nil {
			mergeRecordIntoArtist(artist, *rec)
		}
		return
	}
}

func (r *Resolver) secondaryRecord(ctx context.Context, a authority.Authority, artist *model.Artist, primary model.RawRecord) (*model.RawRecord, error) {
	if id, ok := crossRef(artist, primary, a.Name()); ok {
		return a.Lookup(ctx, id)
	}

	recs, err := a.Search(ctx, primary.Name, 1)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	// A name-based enrichment hit must itself look like the same artist.
	nq := normalize.New(primary.Name)
	cand := r.scorer.Score(nq, model.ResolutionQuery{RawText: primary.Name}, recs[0])
	if cand.Confidence < r.scorer.MinConfidence() {
		return nil, nil
	}
	return &recs[0], nil
}

func crossRef(artist *model.Artist, primary model.RawRecord, name string) (string, bool) {
	if id, ok := primary.ExternalRefs[name]; ok {
		return id, true
	}
	if id, ok := artist.ExternalID(name); ok {
		return id, true
	}
	return "", false
}

func (r *Resolver) accept(ctx context.Context, key string, artist *model.Artist, winner match.Candidate, authorityName string) model.Outcome {
	if err := r.store.PutCachedResolution(ctx, key, store.CachedResolution{
		ArtistID:   artist.ID,
		Confidence: winner.Confidence,
		Authority:  authorityName,
		Rule:       winner.Rule,
	}); err != nil {
		zap.L().Warn("resolution cache write failed", zap.Error(err))
	}

	return model.Outcome{Result: &model.ResolutionResult{
		Artist:     *artist,
		Confidence: winner.Confidence,
		MatchedVia: model.MatchedVia{Authority: authorityName, Rule: winner.Rule},
	}}
}

func artistFromRecord(rec model.RawRecord) *model.Artist {
	a := &model.Artist{
		ID:            uuid.New().String(),
		CanonicalName: rec.Name,
	}
	return a
}

// mergeRecordIntoArtist copies the record's identifiers, aliases and
// metadata onto the artist without disturbing what is already there.
func mergeRecordIntoArtist(artist *model.Artist, rec model.RawRecord) {
	if _, taken := artist.ExternalID(rec.Authority); !taken && rec.ID != "" {
		artist.SetExternalID(rec.Authority, rec.ID)
	}
	for refAuthority, refID := range rec.ExternalRefs {
		if _, taken := artist.ExternalID(refAuthority); !taken {
			artist.SetExternalID(refAuthority, refID)
		}
	}

	for _, alias := range rec.Aliases {
		addAlias(artist, model.Alias{
			Name:       alias.Name,
			Source:     rec.Authority,
			Confidence: 1.0,
		})
	}
	if normalize.Key(rec.Name) != normalize.Key(artist.CanonicalName) {
		addAlias(artist, model.Alias{
			Name:       rec.Name,
			Source:     rec.Authority,
			Confidence: 1.0,
		})
	}

	for k, v := range rec.Metadata {
		if _, exists := artist.Metadata[k]; !exists {
			artist.SetMetadata(k, v)
		}
	}
}

func addAlias(artist *model.Artist, alias model.Alias) {
	key := normalize.Key(alias.Name)
	if key == "" || key == normalize.Key(artist.CanonicalName) {
		return
	}
	for _, existing := range artist.Aliases {
		if existing.Source == alias.Source && normalize.Key(existing.Name) == key {
			return
		}
	}
	artist.Aliases = append(artist.Aliases, alias)
}

func unresolved(reason model.UnresolvedReason, suggestions []model.Suggestion) model.Outcome {
	return model.Outcome{Unresolved: &model.Unresolved{
		Reason:      reason,
		Suggestions: suggestions,
	}}
}
