package analyzer

import (
	"testing"

	"github.com/loopguard/loopguard/internal/violation"
)

func findViolation(vs []violation.Violation, kind violation.Kind, symbol string) *violation.Violation {
	for i := range vs {
		if vs[i].Kind == kind && vs[i].Symbol == symbol {
			return &vs[i]
		}
	}
	return nil
}

func TestScanner_BlockingCalls(t *testing.T) {
	s := NewScanner(nil)

	tests := []struct {
		name     string
		source   string
		symbol   string
		wantLine uint32
	}{
		{"sleep", "<?php\nsleep(5);\n", "sleep", 2},
		{"file_get_contents", "<?php\n$body = file_get_contents('https://api.example.com');\n", "file_get_contents", 2},
		{"curl_exec", "<?php\n$ch = curl_init();\ncurl_exec($ch);\n", "curl_exec", 3},
		{"shell_exec", "<?php\n$out = shell_exec('ls');\n", "shell_exec", 2},
		{"qualified sleep", "<?php\n\\sleep(1);\n", "sleep", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := s.Scan([]byte(tt.source), tt.name+".php")
			v := findViolation(report.Violations, violation.KindBlockingCall, tt.symbol)
			if v == nil {
				t.Fatalf("expected blocking_call violation for %s, got %+v", tt.symbol, report.Violations)
			}
			if v.Severity != violation.SeverityError {
				t.Errorf("severity = %s, want error", v.Severity)
			}
			if v.Line != tt.wantLine {
				t.Errorf("line = %d, want %d", v.Line, tt.wantLine)
			}
			if report.Summary.Safe {
				t.Error("summary should not be safe with a blocking call present")
			}
		})
	}
}

func TestScanner_SafeSource(t *testing.T) {
	s := NewScanner(nil)

	source := `<?php
function add(int $a, int $b): int {
    return $a + $b;
}

function greet(string $name): string {
    return "hello, " . $name;
}
`
	report := s.Scan([]byte(source), "safe.php")

	if len(report.Violations) != 0 {
		t.Fatalf("expected no violations, got %+v", report.Violations)
	}
	if !report.Summary.Safe {
		t.Error("summary.safe should be true")
	}
	if report.ParseError != "" {
		t.Errorf("unexpected parse error: %s", report.ParseError)
	}
}

func TestScanner_WarningCalls(t *testing.T) {
	s := NewScanner(nil)

	report := s.Scan([]byte("<?php\nsession_start();\nheader('X-Test: 1');\n"), "warn.php")

	if v := findViolation(report.Violations, violation.KindUnsafeCall, "session_start"); v == nil {
		t.Error("expected unsafe_call violation for session_start")
	}
	if v := findViolation(report.Violations, violation.KindUnsafeCall, "header"); v == nil {
		t.Error("expected unsafe_call violation for header")
	}
	if report.Summary.Blocking != 0 {
		t.Errorf("blocking = %d, want 0", report.Summary.Blocking)
	}
	if !report.Summary.Safe {
		t.Error("warnings alone should still be safe")
	}
}

func TestScanner_SuperglobalAccess(t *testing.T) {
	s := NewScanner(nil)

	report := s.Scan([]byte("<?php\n$id = $_GET['id'];\n$_SESSION['user'] = $id;\n"), "globals.php")

	for _, symbol := range []string{"$_GET", "$_SESSION"} {
		v := findViolation(report.Violations, violation.KindGlobalStateAccess, symbol)
		if v == nil {
			t.Errorf("expected global_state_access violation for %s", symbol)
			continue
		}
		if v.Suggestion == "" {
			t.Errorf("%s violation should carry a suggestion", symbol)
		}
	}
}

func TestScanner_GlobalDeclaration(t *testing.T) {
	s := NewScanner(nil)

	source := `<?php
function handler() {
    global $db;
    return $db;
}
`
	report := s.Scan([]byte(source), "global_decl.php")

	v := findViolation(report.Violations, violation.KindGlobalStateAccess, "$db")
	if v == nil {
		t.Fatalf("expected global_state_access for $db, got %+v", report.Violations)
	}
	if v.Line != 3 {
		t.Errorf("line = %d, want 3", v.Line)
	}
	// The bare use on line 4 is not a superglobal and must not be flagged,
	// so exactly one finding for $db.
	count := 0
	for _, got := range report.Violations {
		if got.Symbol == "$db" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("found %d violations for $db, want 1", count)
	}
}

func TestScanner_StaticVariable(t *testing.T) {
	s := NewScanner(nil)

	source := `<?php
function counter() {
    static $count = 0;
    $count++;
    return $count;
}
`
	report := s.Scan([]byte(source), "static.php")

	v := findViolation(report.Violations, violation.KindStaticMutableAccess, "$count")
	if v == nil {
		t.Fatalf("expected static_mutable_access for $count, got %+v", report.Violations)
	}
	if v.Severity != violation.SeverityWarning {
		t.Errorf("severity = %s, want warning", v.Severity)
	}
}

func TestScanner_UnboundedLoops(t *testing.T) {
	s := NewScanner(nil)

	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"while true no break", "<?php\nwhile (true) {\n    tick();\n}\n", true},
		{"while 1 no break", "<?php\nwhile (1) {\n    tick();\n}\n", true},
		{"while true with break", "<?php\nwhile (true) {\n    if (done()) {\n        break;\n    }\n}\n", false},
		{"while true with return", "<?php\nfunction f() {\n    while (true) {\n        if (done()) {\n            return 1;\n        }\n    }\n}\n", false},
		{"bounded while", "<?php\n$i = 0;\nwhile ($i < 10) {\n    $i++;\n}\n", false},
		{"for without condition no break", "<?php\nfor (;;) {\n    tick();\n}\n", true},
		{"for without condition with break", "<?php\nfor (;;) {\n    if (done()) {\n        break;\n    }\n}\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := s.Scan([]byte(tt.source), tt.name+".php")
			got := false
			for _, v := range report.Violations {
				if v.Kind == violation.KindUnboundedLoop {
					got = true
					if v.Severity != violation.SeverityError {
						t.Errorf("severity = %s, want error", v.Severity)
					}
				}
			}
			if got != tt.want {
				t.Errorf("unbounded loop flagged = %v, want %v (violations: %+v)", got, tt.want, report.Violations)
			}
		})
	}
}

func TestScanner_ProcessTermination(t *testing.T) {
	s := NewScanner(nil)

	report := s.Scan([]byte("<?php\nexit(1);\n"), "exit.php")

	found := false
	for _, v := range report.Violations {
		if v.Kind == violation.KindBlockingCall && v.Symbol == "exit" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected blocking_call violation for exit, got %+v", report.Violations)
	}
}

func TestScanner_ParseFailureIsDiagnostic(t *testing.T) {
	s := NewScanner(nil)

	report := s.Scan([]byte("<?php function { if ((("), "broken.php")

	if report.ParseError == "" {
		t.Fatal("expected a parse diagnostic")
	}
	if len(report.Violations) != 0 {
		t.Errorf("expected zero violations on parse failure, got %d", len(report.Violations))
	}
	if !report.Summary.Safe {
		t.Error("parse failure report should summarize as safe (no findings)")
	}
}

func TestScanner_OversizedSource(t *testing.T) {
	s := NewScanner(nil)

	report := s.Scan(make([]byte, maxSourceSize+1), "huge.php")

	if report.ParseError == "" {
		t.Fatal("expected a size diagnostic")
	}
	if len(report.Violations) != 0 {
		t.Errorf("expected zero violations, got %d", len(report.Violations))
	}
}

func BenchmarkScanner_TypicalHandler(b *testing.B) {
	s := NewScanner(nil)
	source := []byte(`<?php
function handle($request, $response) {
    $id = $request->query('id');
    $row = $request->db()->fetch('SELECT * FROM users WHERE id = ?', [$id]);
    return $response->json($row);
}
`)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s.Scan(source, "bench.php")
	}
}
