package metadata

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether s can be used unquoted as a table or column name.
func ValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// ColumnName derives the default column name of a field: "UnitOfMeasure" -> "unit_of_measure".
func ColumnName(field string) string {
	return toSnakeCase(field)
}

// TableName derives the default table name of a type: "DishIngredient" -> "dish_ingredients".
func TableName(entity string) string {
	snake := toSnakeCase(entity)
	i := strings.LastIndexByte(snake, '_')
	return snake[:i+1] + inflection.Plural(snake[i+1:])
}

func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
