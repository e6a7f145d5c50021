package consolidate

import (
	"testing"

	"meal-planner/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(id, name string, amount float64, unit, recipe string) common.IngredientLine {
	return common.IngredientLine{
		IngredientID: id,
		Name:         name,
		Amount:       amount,
		Unit:         unit,
		SourceRecipes: []common.SourceRecipe{
			{RecipeID: recipe, RecipeTitle: recipe, Amount: amount, Unit: unit},
		},
	}
}

func TestCombineSameUnit(t *testing.T) {
	common.InitNopLogger()
	got, warnings := Combine("salmon fillet", []common.IngredientLine{
		line("salmon", "salmon fillet", 6, "oz", "recipe1"),
		line("salmon", "salmon fillet", 24, "oz", "recipe1b"),
	}, "oz", nil)

	assert.Empty(t, warnings)
	assert.Equal(t, 30.0, got.Amount)
	assert.Equal(t, "oz", got.Unit)
	require.Len(t, got.SourceRecipes, 2)
	assert.Equal(t, "recipe1", got.SourceRecipes[0].RecipeID)
	assert.Equal(t, 6.0, got.SourceRecipes[0].Amount)
	assert.Equal(t, "recipe1b", got.SourceRecipes[1].RecipeID)
	assert.Equal(t, 24.0, got.SourceRecipes[1].Amount)
}

func TestCombineConvertsUnits(t *testing.T) {
	common.InitNopLogger()
	got, warnings := Combine("butter", []common.IngredientLine{
		line("butter", "butter", 1, "stick", "r1"),
		line("butter", "unsalted butter", 0.5, "cup", "r2"),
		line("butter", "butter", 2, "tbsp", "r3"),
	}, "cup", nil)

	assert.Empty(t, warnings)
	assert.Equal(t, "cup", got.Unit)
	assert.InDelta(t, 0.5+0.5+0.125, got.Amount, 1e-4)
}

func TestCombineUsesSuppliedRatios(t *testing.T) {
	common.InitNopLogger()
	got, warnings := Combine("stock", []common.IngredientLine{
		line("a", "chicken stock", 2, "cup", "r1"),
		line("b", "bouillon", 3, "cube", "r2"),
	}, "cup", []float64{1, 1})

	assert.Empty(t, warnings)
	assert.Equal(t, 5.0, got.Amount)
}

func TestCombineRawAdditionOnGap(t *testing.T) {
	common.InitNopLogger()
	got, warnings := Combine("sweetener", []common.IngredientLine{
		line("a", "brown sugar", 1, "tbsp", "r1"),
		line("b", "maple", 2, "drizzle", "r2"),
	}, "tbsp", nil)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "drizzle")
	assert.Equal(t, 3.0, got.Amount)
	assert.Equal(t, "a", got.IngredientID)
	assert.Equal(t, "sweetener", got.Name)
}

func TestRatios(t *testing.T) {
	got := Ratios("lemon", []common.IngredientLine{
		line("a", "lemon", 2, "whole", "r1"),
		line("b", "lemon juice", 1, "tbsp", "r2"),
		line("c", "lemon", 1, "slice", "r3"),
	}, "cup")

	require.Len(t, got, 3)
	assert.InDelta(t, 0.25, got[0], 1e-6)
	assert.InDelta(t, 1.0/16, got[1], 1e-6)
	assert.Zero(t, got[2])
}

func TestPickUnit(t *testing.T) {
	assert.Equal(t, "tbsp", PickUnit("tahini", []common.IngredientLine{
		line("a", "tahini", 2, "tbsp", "r1"),
		line("a", "tahini", 3, "tablespoons", "r2"),
	}))
	assert.Equal(t, "cup", PickUnit("milk", []common.IngredientLine{
		line("a", "milk", 2, "tbsp", "r1"),
		line("a", "milk", 1, "cup", "r2"),
	}))
	assert.Equal(t, "oz", PickUnit("chicken", []common.IngredientLine{
		line("a", "chicken", 1, "lb", "r1"),
		line("a", "chicken", 8, "oz", "r2"),
	}))
	assert.Equal(t, "clove", PickUnit("garlic", []common.IngredientLine{
		line("a", "garlic", 2, "clove", "r1"),
		line("a", "garlic", 1, "pinch", "r2"),
	}))
	assert.Equal(t, "", PickUnit("x", nil))
}
