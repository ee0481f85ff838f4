package main

import (
	"errors"
	"fmt"

	"dwh/internal/config"
	"dwh/internal/statements"
)

// Exit codes.
const (
	exitOK         = 0
	exitFatal      = 1
	exitConfig     = 2
	exitPartialRun = 3
)

// errBadConfig marks failures to read the configuration at all (missing
// file, malformed YAML, bad environment values).
var errBadConfig = errors.New("configuration")

// partialRunError reports a run that finished with statement failures. The
// failures themselves were already logged in the run summary.
type partialRunError struct {
	RunID    string
	Failures int
}

func (e *partialRunError) Error() string {
	return fmt.Sprintf("run %s finished with %d failed statement(s)", e.RunID, e.Failures)
}

// sourcesError reports bulk-load locations that are missing or unreadable.
type sourcesError struct {
	Missing []string
}

func (e *sourcesError) Error() string {
	return fmt.Sprintf("%d bulk-load source(s) unusable: %v", len(e.Missing), e.Missing)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var (
		cfgErr     *config.Error
		bindErr    *statements.ConfigError
		srcErr     *sourcesError
		partialErr *partialRunError
	)
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &bindErr), errors.As(err, &srcErr), errors.Is(err, errBadConfig):
		return exitConfig
	case errors.As(err, &partialErr):
		return exitPartialRun
	default:
		// Connection failures, an unavailable cluster and AWS errors.
		return exitFatal
	}
}
