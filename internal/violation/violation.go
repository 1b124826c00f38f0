package violation

// Kind classifies what a finding is about.
type Kind int

const (
	KindUnspecified Kind = iota
	KindBlockingCall
	KindUnsafeCall
	KindGlobalStateAccess
	KindStaticMutableAccess
	KindUnboundedLoop
)

// String returns the snake_case kind name.
func (k Kind) String() string {
	switch k {
	case KindBlockingCall:
		return "blocking_call"
	case KindUnsafeCall:
		return "unsafe_call"
	case KindGlobalStateAccess:
		return "global_state_access"
	case KindStaticMutableAccess:
		return "static_mutable_access"
	case KindUnboundedLoop:
		return "unbounded_loop"
	default:
		return "unspecified"
	}
}

// Severity ranks how serious a finding is. Error-level findings halt the
// whole event loop; warnings are dangerous only under shared execution.
type Severity int

const (
	SeverityWarning Severity = iota + 1
	SeverityError
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unspecified"
	}
}

// Violation is one finding from static or runtime detection. Immutable once
// created; aggregated into a Report and discarded after being surfaced.
type Violation struct {
	Kind       Kind     `json:"kind"`
	Severity   Severity `json:"severity"`
	Symbol     string   `json:"symbol"`
	File       string   `json:"file"`
	Line       uint32   `json:"line"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Summary aggregates finding counts for one scanned unit.
type Summary struct {
	Total    int  `json:"total"`
	Blocking int  `json:"blocking"`
	Warnings int  `json:"warnings"`
	Safe     bool `json:"safe"`
}

// Report is the result of scanning one unit of source.
//
// ParseError is a diagnostic, not a Go error: analysis is advisory and a
// malformed input must never halt the pipeline that invokes it.
type Report struct {
	Context    string      `json:"context"`
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
	ParseError string      `json:"parse_error,omitempty"`
}

// Summarize computes the aggregate counts for a set of violations.
// Safe means no Error-severity finding was present.
func Summarize(violations []Violation) Summary {
	s := Summary{Total: len(violations)}
	for _, v := range violations {
		if v.Severity == SeverityError {
			s.Blocking++
		} else {
			s.Warnings++
		}
	}
	s.Safe = s.Blocking == 0
	return s
}
