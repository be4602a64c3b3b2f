package models

import (
	"fmt"
	"strings"
)

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is one recoverable or fatal finding from a pipeline stage.
// Stages accumulate diagnostics instead of throwing; only the top-level
// driver decides whether error-severity entries fail the compilation.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	BlockID  string   `json:"blockId,omitempty"`
}

// Error implements the error interface so a fatal diagnostic can be
// returned directly.
func (d Diagnostic) Error() string {
	if d.BlockID != "" {
		return fmt.Sprintf("[%s] %s: %s (block %s)", d.Code, d.Severity, d.Message, d.BlockID)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Code, d.Severity, d.Message)
}

// Diagnostic codes. Structural codes are fatal; the rest are recoverable.
const (
	CodeMalformedDocument = "malformed_document"
	CodeUnknownKind       = "unknown_kind"
	CodeDuplicateBlockID  = "duplicate_block_id"
	CodeDuplicateName     = "duplicate_flattened_name"
	CodeDanglingWire      = "wire_to_nonexistent_block"
	CodeMultipleDrivers   = "multiple_drivers"
	CodeDisconnectedPort  = "disconnected_port"
	CodeMissingInput      = "missing_input"
	CodeInvalidType       = "invalid_declared_type"
	CodeTypeMismatch      = "type_mismatch"
	CodeInvalidParameter  = "invalid_parameter"
	CodeAlgebraicLoop     = "algebraic_loop"
	CodeStateLoop         = "state_loop_broken"
	CodeDuplicateSink     = "duplicate_sheet_label_sink"
	CodeUnmatchedLabel    = "unmatched_sheet_label"
	CodeUnconnectedEnable = "unconnected_enable"
	CodeExpressionInvalid = "invalid_expression"
	CodeUnsupportedKind   = "unsupported_kind"
)

// DiagnosticList accumulates diagnostics across pipeline stages. The zero
// value is ready to use.
type DiagnosticList struct {
	entries []Diagnostic
}

// Infof appends an info-severity diagnostic.
func (l *DiagnosticList) Infof(code, blockID, format string, args ...interface{}) {
	l.append(SeverityInfo, code, blockID, format, args...)
}

// Warnf appends a warning-severity diagnostic.
func (l *DiagnosticList) Warnf(code, blockID, format string, args ...interface{}) {
	l.append(SeverityWarning, code, blockID, format, args...)
}

// Errorf appends an error-severity diagnostic.
func (l *DiagnosticList) Errorf(code, blockID, format string, args ...interface{}) {
	l.append(SeverityError, code, blockID, format, args...)
}

func (l *DiagnosticList) append(sev Severity, code, blockID, format string, args ...interface{}) {
	l.entries = append(l.entries, Diagnostic{
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		BlockID:  blockID,
	})
}

// Add appends a prebuilt diagnostic.
func (l *DiagnosticList) Add(d Diagnostic) {
	l.entries = append(l.entries, d)
}

// Merge appends every entry of another list.
func (l *DiagnosticList) Merge(other *DiagnosticList) {
	if other == nil {
		return
	}
	l.entries = append(l.entries, other.entries...)
}

// Entries returns the accumulated diagnostics in insertion order.
func (l *DiagnosticList) Entries() []Diagnostic {
	return l.entries
}

// HasErrors reports whether any entry has error severity.
func (l *DiagnosticList) HasErrors() bool {
	for _, d := range l.entries {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ByCode returns all entries with the given code.
func (l *DiagnosticList) ByCode(code string) []Diagnostic {
	var out []Diagnostic
	for _, d := range l.entries {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// String renders the list one diagnostic per line.
func (l *DiagnosticList) String() string {
	lines := make([]string, len(l.entries))
	for i, d := range l.entries {
		lines[i] = d.Error()
	}
	return strings.Join(lines, "\n")
}
