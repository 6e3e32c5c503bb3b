package dataset

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

// Schema is the ordered list of feature names plus the label name.
type Schema struct {
	Features []string
	Label    string
	index    map[string]int
}

// NewSchema validates the feature names and builds the lookup index.
func NewSchema(features []string, label string) (Schema, error) {
	if len(features) == 0 {
		return Schema{}, errors.NewValueError("NewSchema", "dataset has no feature columns")
	}
	index := make(map[string]int, len(features))
	for i, name := range features {
		if name == "" {
			return Schema{}, errors.NewValueError("NewSchema", fmt.Sprintf("column %d has an empty name", i))
		}
		if _, exists := index[name]; exists || name == label {
			return Schema{}, errors.NewValueError("NewSchema", "duplicate column '"+name+"'")
		}
		index[name] = i
	}
	return Schema{
		Features: append([]string(nil), features...),
		Label:    label,
		index:    index,
	}, nil
}

// Index returns the column position of a feature.
func (s Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Vector converts one request object into a 1 × p matrix in schema order.
// Every feature must be present exactly once; unknown keys are rejected.
// Values may be JSON numbers or numeric strings.
func (s Schema) Vector(features map[string]any) (*mat.Dense, error) {
	keys := lo.Keys(features)
	if missing := lo.Without(s.Features, keys...); len(missing) > 0 {
		return nil, errors.NewFeatureError(missing[0], "missing")
	}
	if extra := lo.Without(keys, s.Features...); len(extra) > 0 {
		sort.Strings(extra)
		return nil, errors.NewFeatureError(extra[0], "unknown feature")
	}

	row := make([]float64, len(s.Features))
	for i, name := range s.Features {
		v, err := toFloat(features[name])
		if err != nil {
			return nil, errors.NewFeatureError(name, err.Error())
		}
		if !errors.IsFinite(v) {
			return nil, errors.NewFeatureError(name, "value must be finite")
		}
		row[i] = v
	}
	return mat.NewDense(1, len(row), row), nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("value is null")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
