package feed

import "fmt"

// filter kind discriminants used in serialized records. the set is closed:
// FilterFromRecord rejects anything else instead of guessing.
const (
	KindNot = "not"
	KindAge = "age"

	// KindFeed tags a serialized feed record
	KindFeed = "Feed"
)

// FilterRecord is the flat, language-agnostic serialized form of a filter:
// a kind tag plus positional and keyword arguments. Heterogeneous filter
// chains round-trip through a list of these.
type FilterRecord struct {
	Kind   string         `json:"kind"`
	Args   []string       `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// FilterFromRecord reconstructs a filter from its serialized record. It fails
// with ErrDeserialize on an unknown kind or when the argument shape does not
// match the kind's constructor, and never returns a partially built filter.
func FilterFromRecord(rec FilterRecord) (Filter, error) {
	switch rec.Kind {
	case KindNot:
		return notFromRecord(rec)
	case KindAge:
		return ageFromRecord(rec)
	default:
		return nil, fmt.Errorf("%w: unknown filter kind %q", ErrDeserialize, rec.Kind)
	}
}

func notFromRecord(rec FilterRecord) (Filter, error) {
	if len(rec.Args) != 1 {
		return nil, fmt.Errorf("%w: %q filter wants one term, got %d args", ErrDeserialize, KindNot, len(rec.Args))
	}
	if len(rec.Kwargs) != 0 {
		return nil, fmt.Errorf("%w: %q filter takes no kwargs", ErrDeserialize, KindNot)
	}
	return NewNotFilter(rec.Args[0]), nil
}

func ageFromRecord(rec FilterRecord) (Filter, error) {
	if len(rec.Args) != 0 {
		return nil, fmt.Errorf("%w: %q filter takes no positional args", ErrDeserialize, KindAge)
	}

	var minutes float64
	var failClosed bool
	seenMinutes := false
	for key, val := range rec.Kwargs {
		switch key {
		case "minutes":
			// json decodes numbers as float64
			m, ok := val.(float64)
			if !ok {
				return nil, fmt.Errorf("%w: %q filter minutes must be a number, got %T", ErrDeserialize, KindAge, val)
			}
			minutes, seenMinutes = m, true
		case "fail_closed":
			fc, ok := val.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: %q filter fail_closed must be a bool, got %T", ErrDeserialize, KindAge, val)
			}
			failClosed = fc
		default:
			return nil, fmt.Errorf("%w: %q filter got unexpected kwarg %q", ErrDeserialize, KindAge, key)
		}
	}
	if !seenMinutes {
		return nil, fmt.Errorf("%w: %q filter needs a minutes kwarg", ErrDeserialize, KindAge)
	}
	if minutes < 0 {
		return nil, fmt.Errorf("%w: %q filter minutes must be non-negative, got %v", ErrDeserialize, KindAge, minutes)
	}

	if failClosed {
		return NewAgeFilterFailClosed(minutes), nil
	}
	return NewAgeFilter(minutes), nil
}
