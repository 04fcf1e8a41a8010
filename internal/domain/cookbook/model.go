// Package cookbook is the sample model the CLI walks through: dishes and the
// ingredients they are made of.
package cookbook

import (
	"github.com/shopspring/decimal"
)

// Dish is a recipe.
type Dish struct {
	ID    int64
	Title string

	// Notes is a free-form comment, NULL when absent
	Notes *string

	// Stars is the rating from 1 to 5, NULL when unrated
	Stars *int

	Ingredients []*DishIngredient
}

// EntityName implements entity.Entity.
func (*Dish) EntityName() string { return "Dish" }

// NewDish creates an unsaved dish.
func NewDish(title, notes string) *Dish {
	d := &Dish{Title: title}
	if notes != "" {
		d.Notes = &notes
	}
	return d
}

// AddIngredient appends an ingredient and links it back to the dish.
func (d *Dish) AddIngredient(description, unit string, amount decimal.Decimal) *DishIngredient {
	ing := &DishIngredient{
		Description:   description,
		UnitOfMeasure: unit,
		Amount:        amount,
		Dish:          d,
	}
	d.Ingredients = append(d.Ingredients, ing)
	return ing
}

// DishIngredient is one line of a dish's ingredient list.
type DishIngredient struct {
	ID            int64
	Description   string
	UnitOfMeasure string

	// Amount is stored as decimal(5,2)
	Amount decimal.Decimal

	DishID int64
	Dish   *Dish
}

// EntityName implements entity.Entity.
func (*DishIngredient) EntityName() string { return "DishIngredient" }

// Ptr returns a pointer to v, for the nullable fields.
func Ptr[T any](v T) *T { return &v }
