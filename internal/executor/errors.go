package executor

import "errors"

// Sentinel errors for execution requests. Program failures are not errors;
// they come back as an ExecutionResult with Succeeded=false.
var (
	// ErrMissingInput is returned when code or language is empty.
	ErrMissingInput = errors.New("code and language are required")

	// ErrUnsupportedLanguage is returned for languages outside the dispatch table.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrAnalyzeUnsupported is returned when analyze is asked for a compiled language.
	ErrAnalyzeUnsupported = errors.New("analysis is only supported for JavaScript and Python")
)
