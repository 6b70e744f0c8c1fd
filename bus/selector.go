package bus

import (
	"strings"

	"github.com/c360/twinstreams/errors"
)

// Captures holds the address segments bound by selector placeholders,
// keyed by placeholder name.
type Captures map[string]string

// Selector matches dispatch addresses. Implementations are immutable and
// safe for concurrent use.
type Selector interface {
	// Match reports whether the address matches and returns the segments
	// captured by placeholders. The returned map is nil when the selector
	// has no placeholders.
	Match(address string) (Captures, bool)

	String() string
}

type segmentKind int

const (
	segLiteral segmentKind = iota
	segPlaceholder
	segWildcard
)

type segment struct {
	kind segmentKind
	text string // literal text or placeholder name
}

type template struct {
	raw      string
	segments []segment
	captures int
}

// Compile parses a selector template. Templates are slash-separated address
// patterns where a segment is a literal, a named placeholder "{name}", or
// the wildcard "*". A wildcard in the middle matches exactly one segment; as
// the final segment it matches one or more, so "/things/t1/features/f1/*"
// covers the whole subtree below the feature. Malformed templates are
// rejected here, never at dispatch time.
func Compile(expr string) (Selector, error) {
	if !strings.HasPrefix(expr, "/") {
		return nil, errors.WrapInvalid(errors.ErrMalformedSelector, "Selector", "Compile",
			"selector "+expr+" must start with /")
	}

	parts := strings.Split(expr[1:], "/")
	t := &template{raw: expr, segments: make([]segment, 0, len(parts))}
	seen := map[string]bool{}

	for _, part := range parts {
		switch {
		case part == "":
			return nil, errors.WrapInvalid(errors.ErrMalformedSelector, "Selector", "Compile",
				"selector "+expr+" has an empty segment")

		case part == "*":
			t.segments = append(t.segments, segment{kind: segWildcard})

		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := part[1 : len(part)-1]
			if name == "" || strings.ContainsAny(name, "{}*") {
				return nil, errors.WrapInvalid(errors.ErrMalformedSelector, "Selector", "Compile",
					"selector "+expr+" has an invalid placeholder "+part)
			}
			if seen[name] {
				return nil, errors.WrapInvalid(errors.ErrMalformedSelector, "Selector", "Compile",
					"selector "+expr+" binds placeholder "+name+" twice")
			}
			seen[name] = true
			t.segments = append(t.segments, segment{kind: segPlaceholder, text: name})
			t.captures++

		case strings.ContainsAny(part, "{}*"):
			return nil, errors.WrapInvalid(errors.ErrMalformedSelector, "Selector", "Compile",
				"selector "+expr+" mixes literals and pattern characters in segment "+part)

		default:
			t.segments = append(t.segments, segment{kind: segLiteral, text: part})
		}
	}

	return t, nil
}

// MustCompile is Compile that panics on error. For tests and literal wiring.
func MustCompile(expr string) Selector {
	sel, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return sel
}

func (t *template) Match(address string) (Captures, bool) {
	if !strings.HasPrefix(address, "/") {
		return nil, false
	}
	parts := strings.Split(address[1:], "/")

	var caps Captures
	if t.captures > 0 {
		caps = make(Captures, t.captures)
	}

	j := 0
	for i, seg := range t.segments {
		if j >= len(parts) {
			return nil, false
		}
		switch seg.kind {
		case segLiteral:
			if parts[j] != seg.text {
				return nil, false
			}
			j++
		case segPlaceholder:
			caps[seg.text] = parts[j]
			j++
		case segWildcard:
			if i == len(t.segments)-1 {
				// Final wildcard swallows the rest of the address.
				j = len(parts)
			} else {
				j++
			}
		}
	}
	if j != len(parts) {
		return nil, false
	}
	return caps, true
}

func (t *template) String() string {
	return t.raw
}

type orSelector struct {
	selectors []Selector
}

// Or combines selectors so an address matching any of them matches the
// composite. The first matching selector's captures win. An empty Or never
// matches.
func Or(selectors ...Selector) Selector {
	return &orSelector{selectors: selectors}
}

// CompileOr compiles each template and combines them with Or.
func CompileOr(exprs ...string) (Selector, error) {
	selectors := make([]Selector, 0, len(exprs))
	for _, expr := range exprs {
		sel, err := Compile(expr)
		if err != nil {
			return nil, err
		}
		selectors = append(selectors, sel)
	}
	return Or(selectors...), nil
}

func (o *orSelector) Match(address string) (Captures, bool) {
	for _, sel := range o.selectors {
		if caps, ok := sel.Match(address); ok {
			return caps, true
		}
	}
	return nil, false
}

func (o *orSelector) String() string {
	parts := make([]string, len(o.selectors))
	for i, sel := range o.selectors {
		parts[i] = sel.String()
	}
	return strings.Join(parts, " | ")
}
