package feed

import (
	"errors"
	"fmt"
)

// error taxonomy for the feed core. call sites wrap these with fmt.Errorf
// and %w so callers can match with errors.Is regardless of added context.
var (
	// ErrDeserialize indicates a malformed or unrecognized persisted feed or
	// filter record. Deserialization never produces a partially built object.
	ErrDeserialize = errors.New("deserialization failed")

	// ErrFeedData indicates the remote feed was malformed or contained no
	// entries, as reported by the fetch collaborator.
	ErrFeedData = errors.New("bad feed data")

	// ErrUnknownFeed indicates an operation referenced a feed name (or url)
	// not present in the collection.
	ErrUnknownFeed = errors.New("unknown feed")

	// ErrValidation is the base for input validation failures. The duplicate
	// errors below wrap it, so errors.Is(err, ErrValidation) catches both.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateName rejects add-feed with an already used feed name.
	ErrDuplicateName = fmt.Errorf("%w: duplicate feed name", ErrValidation)

	// ErrDuplicateURL rejects add-feed with an already monitored url.
	ErrDuplicateURL = fmt.Errorf("%w: duplicate feed url", ErrValidation)
)
