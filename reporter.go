// Package dcpflow provides a Go library for distributed JPEG2000 encoding
// of Digital Cinema Packages.
//
// This file re-exports the internal Reporter interface and associated types
// so callers can receive all job events directly.
package dcpflow

import "github.com/five82/dcpflow/internal/reporter"

// Reporter defines the interface for progress reporting during a DCP encode
// job. Implement this interface to receive detailed events.
type Reporter = reporter.Reporter

// NullReporter is a no-op reporter that discards all updates.
type NullReporter = reporter.NullReporter

// HardwareSummary contains hardware information.
type HardwareSummary = reporter.HardwareSummary

// EncodingConfigSummary contains encoding configuration.
type EncodingConfigSummary = reporter.EncodingConfigSummary

// ServerFoundSummary describes a newly discovered remote encoding server.
type ServerFoundSummary = reporter.ServerFoundSummary

// ProgressSnapshot contains encoding progress information.
type ProgressSnapshot = reporter.ProgressSnapshot

// WriterSummary contains Writer statistics at job completion.
type WriterSummary = reporter.WriterSummary

// JobOutcome contains final job results.
type JobOutcome = reporter.JobOutcome

// ReporterError contains error information.
type ReporterError = reporter.ReporterError
