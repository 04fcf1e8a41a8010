package metadata

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Equal compares two normalized field values.
func Equal(a, b any) bool {
	if da, ok := a.(decimal.Decimal); ok {
		db, ok := b.(decimal.Decimal)
		return ok && da.Equal(db)
	}
	if _, ok := b.(decimal.Decimal); ok {
		return false
	}
	return a == b
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case int64:
		return x == 0
	case string:
		return x == ""
	case decimal.Decimal:
		return x.IsZero()
	}
	return false
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return strconv.Quote(x)
	case decimal.Decimal:
		return x.String()
	}
	return fmt.Sprint(v)
}

// deref unwraps the pointer shapes nullable struct fields use. A nil
// pointer becomes nil.
func deref(v any) any {
	switch x := v.(type) {
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *int:
		if x == nil {
			return nil
		}
		return *x
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *int32:
		if x == nil {
			return nil
		}
		return *x
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}

// ToInt64 converts a backend value to int64.
func ToInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", x)
		}
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("value %v is not an integer", x)
		}
		return int64(x), nil
	case float32:
		return ToInt64(float64(x))
	case string:
		return strconv.ParseInt(x, 10, 64)
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case decimal.Decimal:
		if !x.IsInteger() {
			return 0, fmt.Errorf("value %s is not an integer", x)
		}
		return x.IntPart(), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return 0, err
		}
		return ToInt64(dv)
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

// ToString converts a backend value to string.
func ToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return "", err
		}
		return ToString(dv)
	}
	return "", fmt.Errorf("cannot convert %T to string", v)
}

// ToDecimal converts a backend value to decimal.Decimal.
// PostgreSQL NUMERIC arrives as a driver.Valuer rendering to string, SQLite
// NUMERIC as int64 or float64.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case string:
		return decimal.NewFromString(x)
	case []byte:
		return decimal.NewFromString(string(x))
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return decimal.Zero, err
		}
		return ToDecimal(dv)
	}
	return decimal.Zero, fmt.Errorf("cannot convert %T to decimal", v)
}
