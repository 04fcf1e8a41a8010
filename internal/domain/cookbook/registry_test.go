package cookbook

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookbook/internal/core/apperror"
)

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	dish, err := reg.Describe(&Dish{})
	require.NoError(t, err)
	ing, err := reg.Describe(&DishIngredient{})
	require.NoError(t, err)

	assert.Equal(t, DishTable, dish.Table)
	assert.Equal(t, []string{"id", "title", "notes", "stars"}, dish.Columns())
	assert.Equal(t, []string{"id", "description", "unit_of_measure", "amount", "dish_id"}, ing.Columns())
	assert.Less(t, dish.Rank(), ing.Rank())
}

func TestValidateLimits(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	ing, err := reg.Describe(&DishIngredient{})
	require.NoError(t, err)

	ok := &DishIngredient{Description: "Oats", UnitOfMeasure: "g", Amount: decimal.RequireFromString("999.99")}
	assert.NoError(t, ing.Validate(ok))

	tooBig := &DishIngredient{Description: "Oats", UnitOfMeasure: "g", Amount: decimal.RequireFromString("1000")}
	err = ing.Validate(tooBig)
	assert.True(t, apperror.IsValidation(err))
}

func TestDishHelpers(t *testing.T) {
	d := NewDish("Porridge", "")
	assert.Nil(t, d.Notes)

	ing := d.AddIngredient("Milk", "ml", decimal.NewFromInt(250))
	assert.Same(t, d, ing.Dish)
	assert.Len(t, d.Ingredients, 1)

	assert.Equal(t, 4, *Ptr(4))
}

func TestSchema(t *testing.T) {
	for _, name := range []string{"sqlite", "postgres"} {
		stmts, err := Schema(name)
		require.NoError(t, err)
		assert.Len(t, stmts, 3)
	}
	_, err := Schema("oracle")
	assert.Error(t, err)
}
