package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/spacematrix/internal/model"
)

// Float coerces an attribute value to float64. Nil, empty and unparseable
// values become model.Missing. Comma decimal separators are accepted.
func Float(v any) float64 {
	switch x := v.(type) {
	case nil:
		return model.Missing
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return model.Missing
		}
		if !strings.Contains(s, ".") {
			s = strings.Replace(s, ",", ".", 1)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Missing
		}
		return f
	default:
		return model.Missing
	}
}

// PositiveOrMissing coerces like Float but treats zero as missing, since a
// zero cadastral area carries no built or land surface.
func PositiveOrMissing(v any) float64 {
	f := Float(v)
	if f == 0 {
		return model.Missing
	}
	return f
}

// Int coerces an attribute value to an integer category; missing values
// yield def.
func Int(v any, def int) int {
	f := Float(v)
	if model.IsMissing(f) {
		return def
	}
	return int(math.Round(f))
}

// String renders an attribute value as text; nil becomes "". Whole floats
// print without a decimal part so numeric identifiers stay stable.
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
