// Package models defines the core data structures used throughout the application.
package models

import (
	"time"
)

// FieldName identifies one extractable event field.
type FieldName string

const (
	FieldTitle        FieldName = "title"
	FieldStart        FieldName = "start_datetime"
	FieldEnd          FieldName = "end_datetime"
	FieldDuration     FieldName = "duration"
	FieldLocation     FieldName = "location"
	FieldParticipants FieldName = "participants"
	FieldRecurrence   FieldName = "recurrence"
	FieldDescription  FieldName = "description"
)

// EssentialFields are the fields a usable event cannot do without.
// They are always routed to a real strategy, never skipped.
var EssentialFields = []FieldName{FieldTitle, FieldStart}

// IsEssential reports whether a field is part of the essential set.
func IsEssential(f FieldName) bool {
	for _, e := range EssentialFields {
		if f == e {
			return true
		}
	}
	return false
}

// Strategy identifies which extraction path handles a field.
type Strategy string

const (
	StrategyPattern  Strategy = "pattern_match"
	StrategyBackup   Strategy = "deterministic_backup"
	StrategySemantic Strategy = "semantic_model"
	StrategySkip     Strategy = "skip"

	// StrategyError is never routed to; it appears only as a FieldResult
	// source when a strategy failed for that field.
	StrategyError Strategy = "error"
)

// ParseMode selects how the pipeline dispatches field extraction.
type ParseMode string

const (
	ModeHybrid       ParseMode = "hybrid"
	ModePatternOnly  ParseMode = "pattern_only"
	ModeSemanticOnly ParseMode = "semantic_only"
)

// ParsePath labels which strategies the essential fields actually used.
type ParsePath string

const (
	PathPatternOnly         ParsePath = "pattern_only"
	PathPatternThenSemantic ParsePath = "pattern_then_semantic"
	PathSemanticOnly        ParsePath = "semantic_only"
	PathErrorFallback       ParsePath = "error_fallback"
)

// CandidateKind distinguishes the structural shape of a datetime match.
type CandidateKind string

const (
	CandidateTimeRange CandidateKind = "time_range"
	CandidateDateTime  CandidateKind = "datetime"
	CandidateDate      CandidateKind = "date"
	CandidateDuration  CandidateKind = "duration"
)

// Category tags how directly a candidate was stated in the text.
type Category string

const (
	CategoryExplicit Category = "explicit"
	CategoryRelative Category = "relative"
	CategoryInferred Category = "inferred"
)

// ExtractionCandidate is one pattern match produced by the pattern engine.
// Candidates are immutable once built and live only within a single parse.
type ExtractionCandidate struct {
	Kind        CandidateKind `json:"kind"`
	Start       time.Time     `json:"start,omitempty"`
	End         time.Time     `json:"end,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	AllDay      bool          `json:"all_day,omitempty"`
	Confidence  float64       `json:"confidence"`
	MatchedText string        `json:"matched_text"`
	Category    Category      `json:"category"`
	Issues      []string      `json:"issues,omitempty"`
}

// FieldAnalysis reports how extractable one field looks, without extracting it.
type FieldAnalysis struct {
	Field               FieldName `json:"field"`
	ConfidencePotential float64   `json:"confidence_potential"`
	ComplexityScore     float64   `json:"complexity_score"`
	MatchedCategories   []string  `json:"matched_categories,omitempty"`
	Ambiguities         []string  `json:"ambiguities,omitempty"`
	Recommended         Strategy  `json:"recommended_strategy"`
	Priority            int       `json:"priority"`
}

// FieldValue holds the typed payload of one extracted field. Exactly one of
// the members is populated, depending on the field.
type FieldValue struct {
	Text     string        `json:"text,omitempty"`
	Time     *time.Time    `json:"time,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	List     []string      `json:"list,omitempty"`
}

// TextValue builds a text-typed field value.
func TextValue(s string) *FieldValue { return &FieldValue{Text: s} }

// TimeValue builds a time-typed field value.
func TimeValue(t time.Time) *FieldValue { return &FieldValue{Time: &t} }

// DurationValue builds a duration-typed field value.
func DurationValue(d time.Duration) *FieldValue { return &FieldValue{Duration: d} }

// ListValue builds a list-typed field value.
func ListValue(items []string) *FieldValue { return &FieldValue{List: items} }

// FieldResult is the outcome of actually running a strategy for one field.
type FieldResult struct {
	Field        FieldName     `json:"field"`
	Value        *FieldValue   `json:"value,omitempty"`
	Source       Strategy      `json:"source"`
	Confidence   float64       `json:"confidence"`
	Span         string        `json:"span,omitempty"`
	Alternatives []string      `json:"alternatives,omitempty"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

// ParsedEvent is the aggregate extraction result returned to callers and
// stored in the cache.
type ParsedEvent struct {
	Title             string                    `json:"title"`
	Start             *time.Time                `json:"start_datetime,omitempty"`
	End               *time.Time                `json:"end_datetime,omitempty"`
	AllDay            bool                      `json:"all_day,omitempty"`
	Location          string                    `json:"location,omitempty"`
	Participants      []string                  `json:"participants,omitempty"`
	Recurrence        string                    `json:"recurrence,omitempty"`
	Description       string                    `json:"description,omitempty"`
	ConfidenceScore   float64                   `json:"confidence_score"`
	NeedsConfirmation bool                      `json:"needs_confirmation"`
	FieldResults      map[FieldName]FieldResult `json:"field_results,omitempty"`
	CacheHit          bool                      `json:"cache_hit"`
}

// ValidationResult is the cross-field consistency report.
type ValidationResult struct {
	IsValid       bool                   `json:"is_valid"`
	Missing       []FieldName            `json:"missing_fields,omitempty"`
	Warnings      map[FieldName][]string `json:"warnings,omitempty"`
	Suggestions   map[FieldName][]string `json:"suggestions,omitempty"`
	LowConfidence map[FieldName]bool     `json:"low_confidence,omitempty"`
}

// Warning represents a non-fatal issue during processing.
type Warning struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// ParseRequest is the request body for parse endpoints and the input to the
// pipeline orchestrator.
type ParseRequest struct {
	Text string    `json:"text"`
	Mode ParseMode `json:"mode,omitempty"`

	// Fields restricts which optional fields are populated. Essential
	// fields are always processed regardless.
	Fields []FieldName `json:"fields,omitempty"`

	// ReferenceTime anchors relative date resolution. The HTTP layer
	// defaults it to the request arrival time; core logic never reads
	// the wall clock itself.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`

	// TimezoneOffsetMinutes sets the zone extracted local times are
	// interpreted in. Nil means the reference time's zone.
	TimezoneOffsetMinutes *int `json:"timezone_offset_minutes,omitempty"`

	// Audit disables cache reads and writes for this request.
	Audit bool `json:"audit,omitempty"`
}

// ParseMetadata carries per-request bookkeeping alongside the event.
type ParseMetadata struct {
	ProcessingTimeMs int64       `json:"processing_time_ms"`
	Mode             ParseMode   `json:"mode"`
	ReferenceTime    time.Time   `json:"reference_time"`
	FieldsRequested  []FieldName `json:"fields_requested,omitempty"`
	Concurrent       bool        `json:"concurrent"`
}

// ParseResponse is what the orchestrator hands back for every request.
// It is always well-formed; failures surface as warnings and a fallback
// event, never as a missing response.
type ParseResponse struct {
	Event      ParsedEvent      `json:"event"`
	Path       ParsePath        `json:"parsing_path"`
	Validation ValidationResult `json:"validation"`
	Warnings   []Warning        `json:"warnings,omitempty"`
	Metadata   ParseMetadata    `json:"metadata"`
}

// APIKey represents an API key for authentication.
type APIKey struct {
	ID                string     `json:"id"`
	KeyHash           string     `json:"-"` // Never expose
	Name              string     `json:"name"`
	RequestsPerMinute int        `json:"requests_per_minute"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
}

// AuditLog represents an API request audit entry.
type AuditLog struct {
	ID           string    `json:"id"`
	APIKeyID     string    `json:"api_key_id"`
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	RequestSize  int64     `json:"request_size"`
	ResponseCode int       `json:"response_code"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}
