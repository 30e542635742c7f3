// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Error types reported by the metrics engine.

package vqm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOptions indicates an invalid option combination, detected
	// before any ffmpeg process is spawned.
	ErrInvalidOptions = errors.New("invalid options")
	// ErrUnknownMetric indicates a metric name outside the supported set.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrNoFrameData indicates that parsing produced zero frame records.
	ErrNoFrameData = errors.New("no frame data")
	// ErrFrameCountMismatch indicates that metrics computed for the same clip
	// pair disagree on the number of frames.
	ErrFrameCountMismatch = errors.New("frame count mismatch")
)

// ComputationError describes a failed metric computation i.e. ffmpeg exited
// non-zero or could not be run at all. Stderr holds the tail of captured
// diagnostic output.
type ComputationError struct {
	Metric   Metric
	Pair     ClipPair
	ExitCode int
	Stderr   []byte
	err      error
}

// Error implements error interface for ComputationError.
func (e *ComputationError) Error() string {
	return fmt.Sprintf("metric %s computation for %s: %v (exit code %d)",
		e.Metric, e.Pair, e.err, e.ExitCode)
}

// Unwrap returns the underlying cause.
func (e *ComputationError) Unwrap() error {
	return e.err
}

// DiagnosticTail returns captured stderr tail as a string.
func (e *ComputationError) DiagnosticTail() string {
	return string(e.Stderr)
}

// ParseError describes metric output that could not be converted into frame
// records. It is distinct from ComputationError: the ffmpeg process may have
// exited successfully and still produced unusable output.
type ParseError struct {
	Metric  Metric
	Skipped int
	err     error
}

// Error implements error interface for ParseError.
func (e *ParseError) Error() string {
	return fmt.Sprintf("metric %s output parsing: %v (skipped lines: %d)",
		e.Metric, e.err, e.Skipped)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.err
}
