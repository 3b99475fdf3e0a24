// Package alert defines the alert types shared by the Tier 0 checks, the
// investigation agent, and the notification sink.
package alert

import (
	"fmt"
	"strings"
)

// Severity classifies how urgent an alert or notification is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeverityResolved Severity = "resolved"
)

// Valid reports whether s is one of the known severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo, SeverityResolved:
		return true
	}
	return false
}

// Alert is one anomaly detected by a threshold check. Alerts are created
// once by the check that found them and never mutated afterwards.
type Alert struct {
	CheckName string
	Severity  Severity
	Message   string
}

// String renders the alert in the form used for log lines and for the
// investigation prompt.
func (a Alert) String() string {
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(a.Severity)), a.CheckName, a.Message)
}
