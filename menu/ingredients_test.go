package menu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIngredientID(t *testing.T) {
	tests := map[string]string{
		"Salsa di Soia":  "salsadisoia",
		"Tè verde":       "teverde",
		"Jalapeño":       "jalapeno",
		"olio EVO (bio)": "olioevobio",
		"yuzu-kosho 2.0": "yuzukosho20",
		"":               "",
		"味噌":             "",
	}

	for in, want := range tests {
		require.Equal(t, want, IngredientID(in), in)
	}
}

func TestIngredients(t *testing.T) {
	got := Ingredients([]string{"zenzero", "", "Avocado", "alga nori"})
	require.Equal(t, []Ingredient{
		{ID: "alganori", Name: "alga nori"},
		{ID: "avocado", Name: "Avocado"},
		{ID: "zenzero", Name: "zenzero"},
	}, got)

	require.NotNil(t, Ingredients(nil))
}
