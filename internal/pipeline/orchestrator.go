package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eventparse/chrono/internal/analyze"
	"github.com/eventparse/chrono/internal/cache"
	"github.com/eventparse/chrono/internal/config"
	"github.com/eventparse/chrono/internal/models"
	"github.com/eventparse/chrono/internal/patterns"
	"github.com/eventparse/chrono/internal/route"
	"github.com/rs/zerolog/log"
)

// Confidence weights for aggregating field confidences into one score.
const (
	essentialWeight = 0.7
	optionalWeight  = 0.3
)

// defaultEventLength completes an event window when nothing in the text
// pins the end down.
const defaultEventLength = time.Hour

// allFields is every field the pipeline knows how to extract.
var allFields = []models.FieldName{
	models.FieldTitle,
	models.FieldStart,
	models.FieldEnd,
	models.FieldDuration,
	models.FieldLocation,
	models.FieldParticipants,
	models.FieldRecurrence,
	models.FieldDescription,
}

// Orchestrator owns the extraction pipeline and its collaborators. All
// dependencies are injected at construction; there is no global state.
type Orchestrator struct {
	engine   *patterns.Engine
	analyzer *analyze.Analyzer
	router   *route.Router
	backup   BackupStrategy
	semantic SemanticStrategy
	cache    *cache.Cache

	defaultMode     models.ParseMode
	concurrent      bool
	workers         int
	pipelineTimeout time.Duration
	batchTimeout    time.Duration
	priorityTimeout time.Duration

	// now supplies the fallback reference time when a request carries
	// none; injectable for tests.
	now func() time.Time
}

// New builds the orchestrator. A nil backup gets the default rule backup;
// the semantic strategy may be a stub or NewProviderStrategy(nil) when no
// model backend is configured.
func New(cfg *config.Config, backup BackupStrategy, semantic SemanticStrategy, c *cache.Cache) *Orchestrator {
	engine := patterns.NewEngine()
	router := route.New(cfg.Pipeline.Thresholds)

	if backup == nil {
		backup = NewRuleBackup(engine)
	}
	if semantic == nil {
		semantic = NewProviderStrategy(nil)
	}

	return &Orchestrator{
		engine:          engine,
		analyzer:        analyze.New(router),
		router:          router,
		backup:          backup,
		semantic:        semantic,
		cache:           c,
		defaultMode:     models.ParseMode(cfg.Pipeline.Mode),
		concurrent:      cfg.Pipeline.Concurrent,
		workers:         cfg.Pipeline.Workers,
		pipelineTimeout: cfg.PipelineTimeout(),
		batchTimeout:    cfg.BatchTimeout(),
		priorityTimeout: cfg.PriorityTimeout(),
		now:             time.Now,
	}
}

// Parse runs the full pipeline for one request. It always returns a
// well-formed response: field failures become zero-confidence results,
// consistency problems become warnings, timeouts return partial results,
// and an unexpected panic is converted to a minimal fallback event.
func (o *Orchestrator) Parse(ctx context.Context, req models.ParseRequest) (resp *models.ParseResponse) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Pipeline failed, returning fallback event")
			resp = o.fallbackResponse(req, started, fmt.Sprintf("%v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, o.pipelineTimeout)
	defer cancel()

	mode := req.Mode
	if mode == "" {
		mode = o.defaultMode
	}

	ref := o.now()
	if req.ReferenceTime != nil {
		ref = *req.ReferenceTime
	}
	if req.TimezoneOffsetMinutes != nil {
		ref = ref.In(time.FixedZone("offset", *req.TimezoneOffsetMinutes*60))
	}

	var warnings []models.Warning

	// Cleaning.
	cleaned := patterns.Clean(req.Text)
	if cleaned == "" {
		resp = o.fallbackResponse(req, started, "empty input text")
		return resp
	}

	// Cache lookup. Audit and partial-field requests bypass the cache,
	// and non-hybrid modes are kept out of it so the key stays a pure
	// function of text and field set.
	cacheable := o.cache != nil && mode == models.ModeHybrid && !req.Audit && len(req.Fields) == 0
	key := cache.Key(cleaned, req.Fields)
	if cacheable {
		if entry, ok := o.cache.Get(key); ok {
			ev := entry.Event
			ev.CacheHit = true
			return &models.ParseResponse{
				Event:      ev,
				Path:       entry.Path,
				Validation: o.router.ValidateConsistency(&ev),
				Warnings:   entry.Warnings,
				Metadata:   o.metadata(req, mode, ref, started),
			}
		}
	}

	// Analyzing.
	analyses := o.analyzer.Analyze(cleaned)

	// Routing. Essential fields are always included, whatever the caller
	// asked for.
	fields := o.requestedFields(req)
	order := o.router.OptimizeOrder(fields)
	strategies := o.routeFields(order, analyses, mode)

	// Executing.
	shot := newPatternShot(o.engine, cleaned, ref)
	var results map[models.FieldName]models.FieldResult
	if o.concurrent {
		var w []models.Warning
		results, w = o.executeConcurrent(ctx, order, strategies, cleaned, ref, shot)
		warnings = append(warnings, w...)
	} else {
		var w []models.Warning
		results, w = o.executeSequential(ctx, order, strategies, cleaned, ref, shot)
		warnings = append(warnings, w...)
	}

	// Aggregating.
	event := o.aggregate(results)
	path := parsePath(mode, results)

	// Validating. Inconsistency flags the event for confirmation but
	// never fails the request.
	validation := o.router.ValidateConsistency(&event)
	if !validation.IsValid || len(validation.Warnings) > 0 || event.ConfidenceScore < 0.6 {
		event.NeedsConfirmation = true
	}
	for field, msgs := range validation.Warnings {
		for _, msg := range msgs {
			warnings = append(warnings, models.Warning{Source: string(field), Message: msg})
		}
	}

	// Caching. Warnings are stored alongside so a later hit carries them.
	if cacheable {
		o.cache.Put(key, event, path, warnings)
	}

	log.Debug().
		Str("path", string(path)).
		Float64("confidence", event.ConfidenceScore).
		Int("fields", len(results)).
		Bool("valid", validation.IsValid).
		Msg("Parse complete")

	return &models.ParseResponse{
		Event:      event,
		Path:       path,
		Validation: validation,
		Warnings:   warnings,
		Metadata:   o.metadata(req, mode, ref, started),
	}
}

// requestedFields returns the caller's field set plus the essential
// fields, deduplicated.
func (o *Orchestrator) requestedFields(req models.ParseRequest) []models.FieldName {
	if len(req.Fields) == 0 {
		out := make([]models.FieldName, len(allFields))
		copy(out, allFields)
		return out
	}

	seen := map[models.FieldName]bool{}
	var out []models.FieldName
	for _, f := range append(append([]models.FieldName{}, models.EssentialFields...), req.Fields...) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// routeFields assigns a strategy to every field for the given mode.
func (o *Orchestrator) routeFields(order []models.FieldName, analyses map[models.FieldName]models.FieldAnalysis, mode models.ParseMode) map[models.FieldName]models.Strategy {
	out := make(map[models.FieldName]models.Strategy, len(order))
	for _, f := range order {
		switch mode {
		case models.ModePatternOnly:
			out[f] = models.StrategyPattern
		case models.ModeSemanticOnly:
			out[f] = models.StrategySemantic
		default:
			if fa, ok := analyses[f]; ok {
				out[f] = fa.Recommended
			} else {
				out[f] = o.router.Route(f, 0)
			}
		}
	}
	return out
}

func (o *Orchestrator) executeSequential(ctx context.Context, order []models.FieldName, strategies map[models.FieldName]models.Strategy, text string, ref time.Time, shot *patternShot) (map[models.FieldName]models.FieldResult, []models.Warning) {
	results := make(map[models.FieldName]models.FieldResult, len(order))
	var warnings []models.Warning

	for _, f := range order {
		strat := strategies[f]
		if strat == models.StrategySkip {
			continue
		}
		res, w, ok := o.executeField(ctx, f, strat, text, ref, shot)
		warnings = append(warnings, w...)
		if ok {
			results[f] = res
		}
	}
	return results, warnings
}

// executeConcurrent launches every routed field as its own task, started in
// dependency order and bounded by the batch timeout. On timeout it keeps
// whatever completed and retries missing essential fields once with a
// shorter deadline: partial results always beat no results.
func (o *Orchestrator) executeConcurrent(ctx context.Context, order []models.FieldName, strategies map[models.FieldName]models.Strategy, text string, ref time.Time, shot *patternShot) (map[models.FieldName]models.FieldResult, []models.Warning) {
	bctx, cancel := context.WithTimeout(ctx, o.batchTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		results  = make(map[models.FieldName]models.FieldResult, len(order))
		warnings []models.Warning
	)
	sem := make(chan struct{}, o.workers)

	for _, f := range order {
		strat := strategies[f]
		if strat == models.StrategySkip {
			continue
		}

		wg.Add(1)
		go func(f models.FieldName, strat models.Strategy) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-bctx.Done():
				return
			}
			defer func() { <-sem }()

			// The recover in Parse does not reach this goroutine; a
			// panicking strategy becomes an error result for its field.
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("field", string(f)).Msg("Field strategy panicked")
					mu.Lock()
					defer mu.Unlock()
					results[f] = models.FieldResult{Field: f, Source: models.StrategyError}
					warnings = append(warnings, models.Warning{
						Source:  string(f),
						Message: fmt.Sprintf("field extraction panicked: %v", r),
					})
				}
			}()

			res, w, ok := o.executeField(bctx, f, strat, text, ref, shot)
			mu.Lock()
			defer mu.Unlock()
			warnings = append(warnings, w...)
			if ok {
				results[f] = res
			}
		}(f, strat)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return results, warnings

	case <-bctx.Done():
		mu.Lock()
		partial := make(map[models.FieldName]models.FieldResult, len(results))
		for k, v := range results {
			partial[k] = v
		}
		warned := append([]models.Warning(nil), warnings...)
		mu.Unlock()

		warned = append(warned, models.Warning{
			Source:  "pipeline",
			Message: "field extraction timed out, returning partial results",
		})

		// Priority retry: essential fields must not be lost to a slow batch.
		pctx, pcancel := context.WithTimeout(ctx, o.priorityTimeout)
		defer pcancel()
		for _, f := range models.EssentialFields {
			if _, ok := partial[f]; ok {
				continue
			}
			res, w, ok := o.executeField(pctx, f, strategies[f], text, ref, shot)
			warned = append(warned, w...)
			if ok {
				partial[f] = res
			}
		}
		return partial, warned
	}
}

// executeField dispatches one field to its strategy. A strategy failure is
// isolated into a zero-confidence result; a cancellation contributes no
// result at all (ok false).
func (o *Orchestrator) executeField(ctx context.Context, f models.FieldName, strat models.Strategy, text string, ref time.Time, shot *patternShot) (models.FieldResult, []models.Warning, bool) {
	t0 := time.Now()

	var (
		res    models.FieldResult
		issues []string
		ok     = true
	)

	switch strat {
	case models.StrategyPattern:
		res, issues = shot.extract(f)
	case models.StrategyBackup:
		res, issues, ok = o.runSlow(ctx, f, text, ref, shot, o.backup.Extract, o.backup.Available(), "deterministic backup")
	case models.StrategySemantic:
		res, issues, ok = o.runSlow(ctx, f, text, ref, shot, o.semantic.Extract, o.semantic.Available(ctx), "semantic model")
	default:
		return models.FieldResult{}, nil, false
	}

	res.Field = f
	res.Elapsed = time.Since(t0)
	res.Confidence = clamp01(res.Confidence)

	var warnings []models.Warning
	for _, issue := range issues {
		warnings = append(warnings, models.Warning{Source: string(f), Message: issue})
	}
	return res, warnings, ok
}

type extractFunc func(ctx context.Context, field models.FieldName, text string, ref time.Time) (*models.FieldResult, error)

// runSlow invokes a potentially slow strategy. An unavailable or empty
// strategy falls back to the pattern result with reduced confidence; an
// actual failure yields a zero-confidence error result unless the context
// was cancelled, in which case the field contributes nothing.
func (o *Orchestrator) runSlow(ctx context.Context, f models.FieldName, text string, ref time.Time, shot *patternShot, fn extractFunc, available bool, name string) (models.FieldResult, []string, bool) {
	if !available {
		res, issues := shot.extract(f)
		res.Confidence *= 0.8
		issues = append(issues, name+" unavailable; using pattern result with reduced confidence")
		return res, issues, true
	}

	r, err := fn(ctx, f, text, ref)
	if err != nil {
		if ctx.Err() != nil {
			return models.FieldResult{}, nil, false
		}
		log.Warn().Err(err).Str("field", string(f)).Str("strategy", name).Msg("Field strategy failed")
		return models.FieldResult{
			Field:  f,
			Source: models.StrategyError,
		}, []string{fmt.Sprintf("%s failed for %s: %v", name, f, err)}, true
	}

	if r == nil {
		res, issues := shot.extract(f)
		res.Confidence *= 0.8
		return res, issues, true
	}
	return *r, nil, true
}

// aggregate merges field results into one event. The overall confidence is
// always the declared weighted combination of its field results, never set
// independently.
func (o *Orchestrator) aggregate(results map[models.FieldName]models.FieldResult) models.ParsedEvent {
	ev := models.ParsedEvent{FieldResults: results}

	if r, ok := results[models.FieldTitle]; ok && r.Value != nil {
		ev.Title = r.Value.Text
	}
	if r, ok := results[models.FieldStart]; ok && r.Value != nil && r.Value.Time != nil {
		ev.Start = r.Value.Time
	}
	if r, ok := results[models.FieldEnd]; ok && r.Value != nil && r.Value.Time != nil {
		ev.End = r.Value.Time
	}
	if r, ok := results[models.FieldLocation]; ok && r.Value != nil {
		ev.Location = r.Value.Text
	}
	if r, ok := results[models.FieldParticipants]; ok && r.Value != nil {
		ev.Participants = r.Value.List
	}
	if r, ok := results[models.FieldRecurrence]; ok && r.Value != nil {
		ev.Recurrence = r.Value.Text
	}
	if r, ok := results[models.FieldDescription]; ok && r.Value != nil {
		ev.Description = r.Value.Text
	}

	// Complete a missing end: an extracted duration wins, a bare date
	// (midnight start) becomes an all-day window, and anything else gets
	// the default event length.
	if ev.End == nil && ev.Start != nil {
		var end time.Time
		if r, ok := results[models.FieldDuration]; ok && r.Value != nil && r.Value.Duration > 0 {
			end = ev.Start.Add(r.Value.Duration)
		} else if atMidnight(*ev.Start) {
			end = ev.Start.AddDate(0, 0, 1)
		} else {
			end = ev.Start.Add(defaultEventLength)
		}
		ev.End = &end
	}

	ev.AllDay = isAllDay(ev.Start, ev.End)
	ev.ConfidenceScore = overallConfidence(results)
	return ev
}

func atMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}

// isAllDay reports whether the window runs midnight to midnight.
func isAllDay(start, end *time.Time) bool {
	if start == nil || end == nil {
		return false
	}
	return atMidnight(*start) && atMidnight(*end) && end.After(*start)
}

// overallConfidence combines essential and optional field confidences with
// the declared 70/30 weighting. Missing essential fields count as zero;
// the optional side averages only executed fields. When one side has no
// contributors the other carries the full weight.
func overallConfidence(results map[models.FieldName]models.FieldResult) float64 {
	var essSum float64
	for _, f := range models.EssentialFields {
		if r, ok := results[f]; ok {
			essSum += r.Confidence
		}
	}
	essAvg := essSum / float64(len(models.EssentialFields))

	var optSum float64
	optN := 0
	// Sum in canonical field order: map iteration order is randomized and
	// float addition is not associative, which would break determinism.
	for _, f := range allFields {
		if models.IsEssential(f) {
			continue
		}
		r, ok := results[f]
		if !ok {
			continue
		}
		optSum += r.Confidence
		optN++
	}

	if optN == 0 {
		return clamp01(essAvg)
	}
	return clamp01(essentialWeight*essAvg + optionalWeight*(optSum/float64(optN)))
}

// parsePath labels the request by how the essential fields were resolved.
func parsePath(mode models.ParseMode, results map[models.FieldName]models.FieldResult) models.ParsePath {
	if mode == models.ModeSemanticOnly {
		return models.PathSemanticOnly
	}

	semantic, total := 0, 0
	for _, f := range models.EssentialFields {
		r, ok := results[f]
		if !ok {
			continue
		}
		total++
		if r.Source == models.StrategySemantic {
			semantic++
		}
	}

	switch {
	case total > 0 && semantic == total:
		return models.PathSemanticOnly
	case semantic > 0:
		return models.PathPatternThenSemantic
	default:
		return models.PathPatternOnly
	}
}

func (o *Orchestrator) metadata(req models.ParseRequest, mode models.ParseMode, ref time.Time, started time.Time) models.ParseMetadata {
	return models.ParseMetadata{
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		Mode:             mode,
		ReferenceTime:    ref,
		FieldsRequested:  req.Fields,
		Concurrent:       o.concurrent,
	}
}

// fallbackResponse is the terminal failure path: the caller still receives
// a well-formed event carrying the original text as its description.
func (o *Orchestrator) fallbackResponse(req models.ParseRequest, started time.Time, cause string) *models.ParseResponse {
	mode := req.Mode
	if mode == "" {
		mode = o.defaultMode
	}
	ref := o.now()
	if req.ReferenceTime != nil {
		ref = *req.ReferenceTime
	}

	event := models.ParsedEvent{
		Description:       strings.TrimSpace(req.Text),
		ConfidenceScore:   0.1,
		NeedsConfirmation: true,
	}

	return &models.ParseResponse{
		Event: event,
		Path:  models.PathErrorFallback,
		Validation: models.ValidationResult{
			IsValid: false,
			Missing: append([]models.FieldName{}, models.EssentialFields...),
		},
		Warnings: []models.Warning{{
			Source:  "pipeline",
			Message: "parsing failed, returning fallback event: " + cause,
		}},
		Metadata: o.metadata(req, mode, ref, started),
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
