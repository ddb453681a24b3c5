package render

import "log"

// Severity classifies diagnostic messages. Values are ordered.
type Severity int

const (
	SeverityVerbose Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityVerbose:
		return "VERBOSE"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// DiagnosticSink receives severity-tagged text from the pipeline and from
// the backend's validation layer. Purely observational; implementations
// must not affect control flow.
type DiagnosticSink interface {
	Diagnostic(severity Severity, message string)
}

// LogSink writes diagnostics to the standard logger.
type LogSink struct{}

func (LogSink) Diagnostic(severity Severity, message string) {
	log.Printf("[%s] %s", severity, message)
}

type nopSink struct{}

func (nopSink) Diagnostic(Severity, string) {}
