package cookbook

import (
	"github.com/shopspring/decimal"

	"cookbook/internal/metadata"
)

const (
	DishTable       = "dishes"
	IngredientTable = "ingredients"
)

// DishType describes Dish.
func DishType() *metadata.EntityType {
	b := metadata.Define[Dish]("Dish").
		Table(DishTable).
		Key("ID", func(d *Dish) *int64 { return &d.ID }).
		String("Title", func(d *Dish) *string { return &d.Title }, metadata.MaxLength(100)).
		NullString("Notes", func(d *Dish) **string { return &d.Notes }, metadata.MaxLength(1000)).
		NullInt("Stars", func(d *Dish) **int { return &d.Stars })
	return metadata.HasMany(b, "Ingredients", "DishID",
		func(d *Dish) []*DishIngredient { return d.Ingredients }).MustBuild()
}

// IngredientType describes DishIngredient.
func IngredientType() *metadata.EntityType {
	b := metadata.Define[DishIngredient]("DishIngredient").
		Table(IngredientTable).
		Key("ID", func(i *DishIngredient) *int64 { return &i.ID }).
		String("Description", func(i *DishIngredient) *string { return &i.Description }, metadata.MaxLength(100)).
		String("UnitOfMeasure", func(i *DishIngredient) *string { return &i.UnitOfMeasure }, metadata.MaxLength(50)).
		Decimal("Amount", func(i *DishIngredient) *decimal.Decimal { return &i.Amount }, metadata.Precision(5, 2)).
		ForeignKey("DishID", "Dish", func(i *DishIngredient) *int64 { return &i.DishID })
	return metadata.BelongsTo(b, "Dish", "DishID",
		func(i *DishIngredient) *Dish { return i.Dish }).MustBuild()
}

// NewRegistry builds the registry of the cookbook model.
func NewRegistry() (*metadata.Registry, error) {
	return metadata.NewRegistry(DishType(), IngredientType())
}
