package analyzer

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/loopguard/loopguard/internal/violation"
)

// policyCalls is the shared-state hygiene table: calls that bind ambient
// process-wide state rather than blocking the loop. Narrower than the
// scanner's tables and always advisory.
var policyCalls = map[string]callRule{
	"putenv": {violation.KindGlobalStateAccess, violation.SeverityWarning,
		"putenv() mutates the environment shared by all requests",
		"thread configuration through explicit app state"},
	"getenv": {violation.KindGlobalStateAccess, violation.SeverityWarning,
		"getenv() reads ambient process state that another request may have mutated",
		"read configuration captured once at bootstrap"},
	"setlocale": {violation.KindGlobalStateAccess, violation.SeverityWarning,
		"setlocale() mutates locale state shared by all requests",
		"format values explicitly with an intl formatter per request"},
	"session_start": {violation.KindGlobalStateAccess, violation.SeverityWarning,
		"session_start() binds an ambient session store to the whole process",
		"use the server's per-request session API"},
	"ini_set": {violation.KindGlobalStateAccess, violation.SeverityWarning,
		"ini_set() mutates runtime configuration shared by all requests",
		"configure the runtime once at bootstrap"},
	"date_default_timezone_set": {violation.KindGlobalStateAccess, violation.SeverityWarning,
		"date_default_timezone_set() mutates timezone state shared by all requests",
		"construct DateTime values with an explicit timezone"},
}

// PolicyChecker scans source for direct access to shared mutable state.
// It shares the scanner's walk machinery but applies the narrower
// shared-state table; every finding is advisory.
type PolicyChecker struct {
	logger *zap.Logger
}

// NewPolicyChecker creates a PolicyChecker.
func NewPolicyChecker(logger *zap.Logger) *PolicyChecker {
	return &PolicyChecker{logger: logger}
}

// Check reports shared-state hygiene findings for one unit of source.
// Parse failures are diagnostics, never Go errors.
func (p *PolicyChecker) Check(source []byte, label string) *violation.Report {
	report := &violation.Report{Context: label, Violations: []violation.Violation{}}

	root, tree, diag := parseSource(source)
	if tree != nil {
		defer tree.Close()
	}
	if diag != "" {
		report.ParseError = diag
		report.Summary = violation.Summarize(nil)
		return report
	}

	walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_call_expression":
			if rule, ok := policyCalls[callName(n, source)]; ok {
				report.Violations = append(report.Violations, newViolation(n, callName(n, source), rule))
			}

		case "variable_name":
			name := strings.TrimPrefix(n.Content(source), "$")
			if suggestion, ok := superglobals[name]; ok {
				report.Violations = append(report.Violations, violation.Violation{
					Kind:       violation.KindGlobalStateAccess,
					Severity:   violation.SeverityWarning,
					Symbol:     "$" + name,
					Line:       n.StartPoint().Row + 1,
					Message:    fmt.Sprintf("$%s is shared across every request in this process", name),
					Suggestion: suggestion,
				})
			}

		case "global_declaration":
			for _, name := range declaredVariables(n, source) {
				report.Violations = append(report.Violations, violation.Violation{
					Kind:       violation.KindGlobalStateAccess,
					Severity:   violation.SeverityWarning,
					Symbol:     name,
					Line:       n.StartPoint().Row + 1,
					Message:    fmt.Sprintf("global %s couples this function to process-wide state", name),
					Suggestion: "pass the value as an explicit parameter",
				})
			}
			return false

		case "function_static_declaration":
			for _, name := range declaredVariables(n, source) {
				report.Violations = append(report.Violations, violation.Violation{
					Kind:       violation.KindStaticMutableAccess,
					Severity:   violation.SeverityWarning,
					Symbol:     name,
					Line:       n.StartPoint().Row + 1,
					Message:    fmt.Sprintf("static %s leaks state between requests", name),
					Suggestion: "store per-call state in a bounded, injected cache",
				})
			}
		}
		return true
	})

	for i := range report.Violations {
		report.Violations[i].File = label
	}
	report.Summary = violation.Summarize(report.Violations)
	return report
}
