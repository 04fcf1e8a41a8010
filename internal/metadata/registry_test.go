package metadata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookbook/internal/core/apperror"
)

type author struct {
	ID    int64
	Name  string
	Bio   *string
	Books []*book
}

func (*author) EntityName() string { return "Author" }

type book struct {
	ID       int64
	Title    string
	Pages    *int
	Price    decimal.Decimal
	AuthorID int64
	Author   *author
	Version  int64
}

func (*book) EntityName() string { return "Book" }

type stray struct{ ID int64 }

func (*stray) EntityName() string { return "Stray" }

func authorType() *EntityType {
	b := Define[author]("Author").
		Key("ID", func(a *author) *int64 { return &a.ID }).
		String("Name", func(a *author) *string { return &a.Name }, MaxLength(10)).
		NullString("Bio", func(a *author) **string { return &a.Bio })
	return HasMany(b, "Books", "AuthorID", func(a *author) []*book { return a.Books }).MustBuild()
}

func bookType() *EntityType {
	b := Define[book]("Book").
		Key("ID", func(b *book) *int64 { return &b.ID }).
		String("Title", func(b *book) *string { return &b.Title }).
		NullInt("Pages", func(b *book) **int { return &b.Pages }).
		Decimal("Price", func(b *book) *decimal.Decimal { return &b.Price }, Precision(5, 2)).
		ForeignKey("AuthorID", "Author", func(b *book) *int64 { return &b.AuthorID }).
		Int64("Version", func(b *book) *int64 { return &b.Version }, RowVersion())
	return BelongsTo(b, "Author", "AuthorID", func(b *book) *author { return b.Author }).MustBuild()
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(bookType(), authorType())
	require.NoError(t, err)

	a, err := reg.Lookup("Author")
	require.NoError(t, err)
	b, err := reg.Lookup("Book")
	require.NoError(t, err)

	assert.Equal(t, "authors", a.Table)
	assert.Equal(t, "books", b.Table)
	assert.Less(t, a.Rank(), b.Rank())
	assert.Equal(t, []*EntityType{a, b}, reg.Types())

	assert.Equal(t, []string{"id", "title", "pages", "price", "author_id", "version"}, b.Columns())
	assert.NotNil(t, b.VersionField())

	nav := a.Navigations()[0]
	assert.Equal(t, Collection, nav.Kind)
	assert.Same(t, b, nav.TargetType())
	fk, _ := b.Field("AuthorID")
	assert.Same(t, fk, nav.ForeignKeyField())
}

func TestNewRegistry_Errors(t *testing.T) {
	noKey := Define[stray]("Stray").Int64("ID", func(s *stray) *int64 { return &s.ID }).MustBuild()
	badColumn := Define[stray]("Stray").
		Key("ID", func(s *stray) *int64 { return &s.ID }, Column("id; drop")).MustBuild()
	dupColumn := Define[stray]("Stray").
		Key("ID", func(s *stray) *int64 { return &s.ID }).
		Int64("Other", func(s *stray) *int64 { return &s.ID }, Column("ID")).MustBuild()

	tests := []struct {
		name string
		defs []*EntityType
	}{
		{"no key", []*EntityType{noKey}},
		{"invalid column", []*EntityType{badColumn}},
		{"duplicate column", []*EntityType{dupColumn}},
		{"unregistered principal", []*EntityType{bookType()}},
		{"registered twice", []*EntityType{authorType(), authorType()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.defs...)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrUnmappedType)
		})
	}
}

func TestRegistry_Describe(t *testing.T) {
	reg, err := NewRegistry(authorType(), bookType())
	require.NoError(t, err)

	typ, err := reg.Describe(&author{})
	require.NoError(t, err)
	assert.Equal(t, "Author", typ.Name)

	_, err = reg.Describe(&stray{})
	assert.ErrorIs(t, err, apperror.ErrUnmappedType)

	_, err = reg.Lookup("Nope")
	assert.ErrorIs(t, err, apperror.ErrUnmappedType)
}

func TestField_GetSet(t *testing.T) {
	typ := bookType()
	b := &book{}

	pages, _ := typ.Field("Pages")
	assert.Nil(t, pages.Get(b))
	require.NoError(t, pages.Set(b, int32(120)))
	require.NotNil(t, b.Pages)
	assert.Equal(t, 120, *b.Pages)
	assert.Equal(t, int64(120), pages.Get(b))
	require.NoError(t, pages.Set(b, nil))
	assert.Nil(t, b.Pages)

	price, _ := typ.Field("Price")
	require.NoError(t, price.Set(b, "12.50"))
	assert.True(t, b.Price.Equal(decimal.RequireFromString("12.5")))
	require.NoError(t, price.Set(b, 3.25))
	assert.Equal(t, "3.25", b.Price.String())

	title, _ := typ.Field("Title")
	require.NoError(t, title.Set(b, []byte("Dune")))
	assert.Equal(t, "Dune", b.Title)
	assert.Error(t, title.Set(b, 42))

	id, _ := typ.Field("ID")
	assert.False(t, typ.HasKey(b))
	require.NoError(t, id.Set(b, float64(7)))
	assert.True(t, typ.HasKey(b))
	assert.Equal(t, []any{int64(7)}, typ.KeyValues(b))
}

func TestField_SetNullableFromPointer(t *testing.T) {
	a := &author{}
	bio, _ := authorType().Field("Bio")
	text := "Writes books"
	require.NoError(t, bio.Set(a, &text))
	require.NotNil(t, a.Bio)
	assert.Equal(t, "Writes books", *a.Bio)
	require.NoError(t, bio.Set(a, (*string)(nil)))
	assert.Nil(t, a.Bio)

	b := &book{}
	pages, _ := bookType().Field("Pages")
	n := 300
	require.NoError(t, pages.Set(b, &n))
	require.NotNil(t, b.Pages)
	assert.Equal(t, 300, *b.Pages)
	assert.NotSame(t, &n, b.Pages)
	require.NoError(t, pages.Set(b, (*int)(nil)))
	assert.Nil(t, b.Pages)
}

func TestBelongsTo_NilPrincipal(t *testing.T) {
	typ := bookType()
	nav := typ.Navigations()[0]

	assert.Nil(t, nav.Principal(&book{}))

	a := &author{ID: 3}
	assert.Same(t, a, nav.Principal(&book{Author: a}))
}

func TestHasMany_SkipsNil(t *testing.T) {
	typ := authorType()
	nav := typ.Navigations()[0]

	b1 := &book{}
	items := nav.Items(&author{Books: []*book{b1, nil}})
	require.Len(t, items, 1)
	assert.Same(t, b1, items[0])
}

func TestValidate(t *testing.T) {
	a := authorType()
	assert.NoError(t, a.Validate(&author{Name: "Herbert"}))

	err := a.Validate(&author{Name: "Frank Patrick Herbert"})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	b := bookType()
	assert.NoError(t, b.Validate(&book{Price: decimal.RequireFromString("999.99")}))
	assert.Error(t, b.Validate(&book{Price: decimal.RequireFromString("1000")}))
	assert.Error(t, b.Validate(&book{Price: decimal.RequireFromString("1.005")}))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "unit_of_measure", ColumnName("UnitOfMeasure"))
	assert.Equal(t, "dish_id", ColumnName("DishID"))
	assert.Equal(t, "id", ColumnName("ID"))
	assert.Equal(t, "dishes", TableName("Dish"))
	assert.Equal(t, "dish_ingredients", TableName("DishIngredient"))
	assert.True(t, ValidIdentifier("dish_id"))
	assert.False(t, ValidIdentifier("dishes;--"))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, nil))
	assert.True(t, Equal(int64(1), int64(1)))
	assert.False(t, Equal(int64(1), nil))
	assert.True(t, Equal(decimal.RequireFromString("2.50"), decimal.RequireFromString("2.5")))
	assert.False(t, Equal(decimal.RequireFromString("2.50"), "2.50"))
	assert.False(t, Equal("2.50", decimal.RequireFromString("2.50")))
}
