package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Issue is one problem found while loading or validating configuration.
type Issue struct {
	Summary string
	Detail  string
	Subject *hcl.Range
}

func (i Issue) String() string {
	var b strings.Builder
	if i.Subject != nil {
		fmt.Fprintf(&b, "%s: ", i.Subject.String())
	}
	b.WriteString(i.Summary)
	if i.Detail != "" {
		fmt.Fprintf(&b, ": %s", i.Detail)
	}
	return b.String()
}

// ConfigError aggregates every problem found in one loading pass, so a user
// can fix many issues in one iteration. It is always fatal before any side
// effect occurs.
type ConfigError struct {
	Issues []Issue
}

func (e *ConfigError) Error() string {
	if len(e.Issues) == 1 {
		return "invalid configuration: " + e.Issues[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "invalid configuration (%d problems):", len(e.Issues))
	for _, issue := range e.Issues {
		b.WriteString("\n  - ")
		b.WriteString(issue.String())
	}
	return b.String()
}

func (e *ConfigError) append(issue Issue) {
	e.Issues = append(e.Issues, issue)
}

func (e *ConfigError) appendDiags(diags hcl.Diagnostics) {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		e.Issues = append(e.Issues, Issue{
			Summary: d.Summary,
			Detail:  d.Detail,
			Subject: d.Subject,
		})
	}
}

// orNil returns the error, or nil when no issues were collected.
func (e *ConfigError) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}
