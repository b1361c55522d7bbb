package recommend

import "errors"

var (
	// ErrNotFound reports an article id that is not in the corpus.
	ErrNotFound = errors.New("article not found")

	// ErrInvalidInput reports a malformed request, such as n <= 0.
	ErrInvalidInput = errors.New("invalid input")
)
