package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/twinstreams/errors"
)

func TestCompile_Valid(t *testing.T) {
	exprs := []string{
		"/things/org.acme:sensor-1",
		"/things/{thingId}",
		"/things/{thingId}/attributes/*",
		"/things/*/features/{featureId}",
		"/search/things/sub-42",
		"/*",
	}

	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			sel, err := Compile(expr)
			require.NoError(t, err)
			assert.Equal(t, expr, sel.String())
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	exprs := []string{
		"",
		"things/t1",
		"/things//attributes",
		"/things/t1/",
		"/things/{}",
		"/things/{a*b}",
		"/things/{thingId}/features/{thingId}",
		"/things/par{tial}",
		"/things/mid*dle",
	}

	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			_, err := Compile(expr)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrMalformedSelector))
		})
	}
}

func TestSelector_Match(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		address  string
		want     bool
		captures Captures
	}{
		{
			name:     "exact literal",
			selector: "/things/org.acme:t1",
			address:  "/things/org.acme:t1",
			want:     true,
		},
		{
			name:     "literal mismatch",
			selector: "/things/org.acme:t1",
			address:  "/things/org.acme:t2",
			want:     false,
		},
		{
			name:     "literal does not cover subtree",
			selector: "/things/org.acme:t1",
			address:  "/things/org.acme:t1/attributes",
			want:     false,
		},
		{
			name:     "placeholder captures segment",
			selector: "/things/{thingId}/attributes/{key}",
			address:  "/things/org.acme:t1/attributes/location",
			want:     true,
			captures: Captures{"thingId": "org.acme:t1", "key": "location"},
		},
		{
			name:     "placeholder matches exactly one segment",
			selector: "/things/{thingId}/attributes",
			address:  "/things/org.acme:t1/attributes/location",
			want:     false,
		},
		{
			name:     "inner wildcard matches one segment",
			selector: "/things/*/features/engine",
			address:  "/things/org.acme:t1/features/engine",
			want:     true,
		},
		{
			name:     "inner wildcard does not span segments",
			selector: "/things/*/features/engine",
			address:  "/things/a/b/features/engine",
			want:     false,
		},
		{
			name:     "trailing wildcard matches one segment",
			selector: "/things/org.acme:t1/features/f1/*",
			address:  "/things/org.acme:t1/features/f1/properties",
			want:     true,
		},
		{
			name:     "trailing wildcard matches deep subtree",
			selector: "/things/org.acme:t1/features/f1/*",
			address:  "/things/org.acme:t1/features/f1/properties/density",
			want:     true,
		},
		{
			name:     "trailing wildcard needs at least one segment",
			selector: "/things/org.acme:t1/features/f1/*",
			address:  "/things/org.acme:t1/features/f1",
			want:     false,
		},
		{
			name:     "address shorter than selector",
			selector: "/things/{thingId}/attributes/{key}",
			address:  "/things/org.acme:t1",
			want:     false,
		},
		{
			name:     "placeholder and trailing wildcard combine",
			selector: "/things/{thingId}/*",
			address:  "/things/org.acme:t1/features/f1/properties/rpm",
			want:     true,
			captures: Captures{"thingId": "org.acme:t1"},
		},
		{
			name:     "relative address never matches",
			selector: "/things/{thingId}",
			address:  "things/org.acme:t1",
			want:     false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sel := MustCompile(test.selector)
			captures, ok := sel.Match(test.address)
			assert.Equal(t, test.want, ok)
			if test.captures != nil {
				assert.Equal(t, test.captures, captures)
			}
		})
	}
}

func TestOr(t *testing.T) {
	sel, err := CompileOr(
		"/things/{thingId}",
		"/things/{thingId}/*",
	)
	require.NoError(t, err)

	captures, ok := sel.Match("/things/org.acme:t1")
	require.True(t, ok)
	assert.Equal(t, "org.acme:t1", captures["thingId"])

	captures, ok = sel.Match("/things/org.acme:t1/attributes/location")
	require.True(t, ok)
	assert.Equal(t, "org.acme:t1", captures["thingId"])

	_, ok = sel.Match("/policies/org.acme:p1")
	assert.False(t, ok)

	assert.Equal(t, "/things/{thingId} | /things/{thingId}/*", sel.String())
}

func TestOr_Empty(t *testing.T) {
	sel := Or()
	_, ok := sel.Match("/things/org.acme:t1")
	assert.False(t, ok)
}

func TestCompileOr_PropagatesErrors(t *testing.T) {
	_, err := CompileOr("/things/{thingId}", "broken")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedSelector))
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustCompile("not-a-selector")
	})
}
