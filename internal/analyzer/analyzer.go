// Package analyzer statically scans PHP worker source for operations that
// block an event loop or pollute process-wide state. Scanning is advisory:
// it reports findings, it never fails the pipeline that invokes it.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"
	"go.uber.org/zap"

	"github.com/loopguard/loopguard/internal/violation"
)

// maxSourceSize caps the input the scanner will accept (10 MB). Larger
// inputs produce a report-level diagnostic rather than an error.
const maxSourceSize = 10 * 1024 * 1024

// Scanner walks PHP syntax trees looking up call expressions in the
// blocking and warning tables, and flags shared-state and loop hazards.
// Safe for concurrent use; each Scan creates its own parser.
type Scanner struct {
	logger *zap.Logger
}

// NewScanner creates a Scanner.
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// Scan analyzes one unit of source and returns a structured report.
// Parse failures are captured in Report.ParseError with zero violations;
// they never propagate as Go errors.
func (s *Scanner) Scan(source []byte, label string) *violation.Report {
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
			name := callName(n, source)
			if rule, ok := blockingCalls[name]; ok {
				report.Violations = append(report.Violations, newViolation(n, name, rule))
			} else if rule, ok := warningCalls[name]; ok {
				report.Violations = append(report.Violations, newViolation(n, name, rule))
			}

		case "exit_statement":
			symbol := "exit"
			if strings.HasPrefix(strings.ToLower(n.Content(source)), "die") {
				symbol = "die"
			}
			report.Violations = append(report.Violations, newViolation(n, symbol, blockingCalls[symbol]))

		case "variable_name":
			name := strings.TrimPrefix(n.Content(source), "$")
			if suggestion, ok := superglobals[name]; ok {
				report.Violations = append(report.Violations, violation.Violation{
					Kind:       violation.KindGlobalStateAccess,
					Severity:   violation.SeverityWarning,
					Symbol:     "$" + name,
					Line:       n.StartPoint().Row + 1,
					Message:    fmt.Sprintf("$%s is process-wide mutable state shared across requests", name),
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
					Message:    fmt.Sprintf("global %s imports process-wide mutable state into this function", name),
					Suggestion: "pass the value as an explicit parameter",
				})
			}
			return false // children already reported

		case "function_static_declaration":
			for _, name := range declaredVariables(n, source) {
				report.Violations = append(report.Violations, violation.Violation{
					Kind:       violation.KindStaticMutableAccess,
					Severity:   violation.SeverityWarning,
					Symbol:     name,
					Line:       n.StartPoint().Row + 1,
					Message:    fmt.Sprintf("static %s persists across every request handled by this process", name),
					Suggestion: "store per-call state in a bounded, injected cache",
				})
			}

		case "while_statement":
			if cond := unwrapCondition(n.ChildByFieldName("condition")); isTruthyConstant(cond, source) && !loopHasEscape(n) {
				report.Violations = append(report.Violations, unboundedLoop(n, "while"))
			}

		case "for_statement":
			if n.ChildByFieldName("condition") == nil && !loopHasEscape(n) {
				report.Violations = append(report.Violations, unboundedLoop(n, "for"))
			}
		}
		return true
	})

	for i := range report.Violations {
		report.Violations[i].File = label
	}
	report.Summary = violation.Summarize(report.Violations)

	if !report.Summary.Safe && s.logger != nil {
		s.logger.Debug("blocking operations found",
			zap.String("context", label),
			zap.Int("blocking", report.Summary.Blocking),
			zap.Int("warnings", report.Summary.Warnings),
		)
	}

	return report
}

func newViolation(n *sitter.Node, symbol string, rule callRule) violation.Violation {
	return violation.Violation{
		Kind:       rule.kind,
		Severity:   rule.severity,
		Symbol:     symbol,
		Line:       n.StartPoint().Row + 1,
		Message:    rule.message,
		Suggestion: rule.suggestion,
	}
}

func unboundedLoop(n *sitter.Node, symbol string) violation.Violation {
	return violation.Violation{
		Kind:     violation.KindUnboundedLoop,
		Severity: violation.SeverityError,
		Symbol:   symbol,
		Line:     n.StartPoint().Row + 1,
		Message:  "loop with a constant-true condition and no reachable break starves the event loop",
		// Runtime-computed bounds are not analyzed; this catches the
		// literal-constant shape only.
		Suggestion: "bound the loop or yield to the scheduler inside it",
	}
}

// parseSource validates and parses PHP source. A non-empty diag string means
// the input could not be analyzed; the tree (when non-nil) must be closed by
// the caller.
func parseSource(source []byte) (*sitter.Node, *sitter.Tree, string) {
	if len(source) > maxSourceSize {
		return nil, nil, fmt.Sprintf("source exceeds %d byte limit", maxSourceSize)
	}
	if !utf8.Valid(source) {
		return nil, nil, "source is not valid UTF-8"
	}

	parser := sitter.NewParser()
	parser.SetLanguage(php.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, nil, "parse failed: " + err.Error()
	}

	root := tree.RootNode()
	if root == nil {
		return nil, tree, "parser returned no syntax tree"
	}
	if root.HasError() {
		return nil, tree, "source contains syntax errors"
	}
	return root, tree, ""
}

// walk visits every node depth-first. visit returns false to skip a
// node's children.
func walk(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), visit)
	}
}

// callName returns the lowercased callee of a function_call_expression,
// or "" when the callee is dynamic (variable functions, closures).
func callName(n *sitter.Node, source []byte) string {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "name":
		return strings.ToLower(fn.Content(source))
	case "qualified_name":
		// \sleep(...) — fully qualified global function.
		return strings.ToLower(strings.TrimPrefix(fn.Content(source), "\\"))
	default:
		return ""
	}
}

// declaredVariables collects the $names declared by a global or static
// declaration statement.
func declaredVariables(n *sitter.Node, source []byte) []string {
	var names []string
	walk(n, func(child *sitter.Node) bool {
		if child.Type() == "variable_name" {
			names = append(names, child.Content(source))
			return false
		}
		return true
	})
	return names
}

// unwrapCondition strips parentheses around a loop condition.
func unwrapCondition(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_expression" {
		var inner *sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			inner = n.NamedChild(i)
		}
		n = inner
	}
	return n
}

// isTruthyConstant reports whether the condition is literal true or a
// non-zero integer literal.
func isTruthyConstant(n *sitter.Node, source []byte) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "boolean":
		return strings.EqualFold(n.Content(source), "true")
	case "integer":
		text := strings.TrimLeft(n.Content(source), "0")
		return text != "" // any non-zero literal
	default:
		return false
	}
}

// loopHasEscape reports whether the loop body contains any construct that
// can leave the loop. Text-level heuristic: a break inside a nested switch
// still counts, so this under-reports rather than over-reports.
func loopHasEscape(loop *sitter.Node) bool {
	found := false
	walk(loop, func(n *sitter.Node) bool {
		if n == loop {
			return true
		}
		switch n.Type() {
		case "break_statement", "return_statement", "throw_expression", "throw_statement", "exit_statement", "goto_statement":
			found = true
			return false
		}
		return !found
	})
	return found
}
