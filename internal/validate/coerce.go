package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/schema"
)

// dateLayouts are accepted by the "date" type check.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

// TypeMatches reports whether val has the runtime type declared by t.
// JSON numbers are accepted for number; integer requires an integral value.
func TypeMatches(val any, t schema.FieldType) bool {
	switch t {
	case schema.TypeAny, "":
		return true
	case schema.TypeString:
		_, ok := val.(string)
		return ok
	case schema.TypeNumber:
		_, err := toFloat(val)
		return err == nil && !isString(val)
	case schema.TypeInteger:
		f, err := toFloat(val)
		return err == nil && !isString(val) && f == math.Trunc(f)
	case schema.TypeBoolean:
		_, ok := val.(bool)
		return ok
	case schema.TypeList:
		_, ok := val.([]any)
		return ok
	case schema.TypeObject:
		_, ok := val.(map[string]any)
		return ok
	case schema.TypeDate:
		s, ok := val.(string)
		return ok && parsesAsDate(s)
	}
	return false
}

// Coerce converts a decoded JSON value into the Go type for t:
//
//	string  -> string
//	number  -> float64
//	integer -> int64
//	boolean -> bool
//	date    -> time.Time
//
// Strings holding numbers or booleans are converted as well, since the
// form stores many numeric inputs as text. list, object and any are
// returned unchanged.
func Coerce(val any, t schema.FieldType) (any, error) {
	if val == nil {
		return nil, nil
	}
	switch t {
	case schema.TypeString:
		s, ok := scalarString(val)
		if !ok {
			return nil, fmt.Errorf("cannot coerce %T to string", val)
		}
		return s, nil
	case schema.TypeNumber:
		return toFloat(val)
	case schema.TypeInteger:
		f, err := toFloat(val)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("%v is not an integer", val)
		}
		return int64(f), nil
	case schema.TypeBoolean:
		switch x := val.(type) {
		case bool:
			return x, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(x))
		}
		return nil, fmt.Errorf("cannot coerce %T to boolean", val)
	case schema.TypeDate:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("cannot coerce %T to date", val)
		}
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as date", s)
	}
	return val, nil
}

func toFloat(val any) (float64, error) {
	switch x := val.(type) {
	case json.Number:
		return x.Float64()
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, fmt.Errorf("cannot coerce %T to number", val)
}

func isString(val any) bool {
	_, ok := val.(string)
	return ok
}

func parsesAsDate(s string) bool {
	_, err := Coerce(s, schema.TypeDate)
	return err == nil
}
