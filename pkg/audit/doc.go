// Package audit records security-relevant events: authorization denials,
// membership changes, system role changes and token lifecycle.
//
// Sinks implement Logger. DBLogger persists events to the audit_logs table,
// LogrusLogger emits structured log lines, and MultiLogger fans out to
// several sinks:
//
//	sink := audit.NewMultiLogger(
//		audit.NewDBLogger(db),
//		audit.NewLogrusLogger(logrus.StandardLogger()),
//	)
//
// Audit failures never change the outcome of the operation being audited;
// callers log them and continue.
package audit
