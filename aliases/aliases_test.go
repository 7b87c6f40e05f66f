package aliases

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "alias", in: "uramaki piccante", want: "uramaki sunburn"},
		{name: "mixed case alias", in: "Uramaki PICCANTE", want: "uramaki sunburn"},
		{name: "later entry wins", in: "tonno piccante", want: "tartare tonno shichimi"},
		{name: "single word alias", in: "Ramen", want: "ramen shoyu vegetale"},
		{name: "unknown is lowercased", in: "Pizza Margherita", want: "pizza margherita"},
		{name: "empty", in: "", want: ""},
		{name: "accented canonical", in: "te verde", want: "tè verde freddo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Resolve(tt.in))
		})
	}
}

func TestResolve_CanonicalIsFixedPoint(t *testing.T) {
	for _, e := range table {
		c := e.canonical
		require.Equal(t, c, Resolve(c), "canonical %q", c)
		require.Equal(t, c, Resolve(strings.ToUpper(c)), "upper canonical %q", c)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	for _, e := range table {
		for _, a := range e.aliases {
			once := Resolve(a)
			require.Equal(t, once, Resolve(once), "alias %q", a)
		}
	}
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "uramaki sunburn", Normalize("  Uramaki Sunburn \n"))
}
