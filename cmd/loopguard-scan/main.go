// loopguard-scan lints PHP worker source for operations that block the
// event loop or pollute process-wide state. Intended to be wired into a
// build/lint pipeline: exit code 1 means blocking operations were found,
// parse diagnostics alone never fail the run.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/loopguard/loopguard/internal/analyzer"
	"github.com/loopguard/loopguard/internal/violation"
)

func main() {
	policy := flag.Bool("policy", false, "also run the shared-state policy checker")
	pretty := flag.Bool("pretty", false, "indent JSON output")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: loopguard-scan [-policy] [-pretty] <file.php> [file.php ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := zap.NewNop()
	scanner := analyzer.NewScanner(logger)
	checker := analyzer.NewPolicyChecker(logger)

	var reports []*violation.Report
	blocking := false

	for _, path := range flag.Args() {
		source, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loopguard-scan: %v\n", err)
			os.Exit(2)
		}

		report := scanner.Scan(source, path)
		if *policy {
			policyReport := checker.Check(source, path)
			report.Violations = append(report.Violations, policyReport.Violations...)
			report.Summary = violation.Summarize(report.Violations)
		}

		if !report.Summary.Safe {
			blocking = true
		}
		reports = append(reports, report)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(reports); err != nil {
		fmt.Fprintf(os.Stderr, "loopguard-scan: encode: %v\n", err)
		os.Exit(2)
	}

	if blocking {
		os.Exit(1)
	}
}
