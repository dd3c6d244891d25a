package expr

import "fmt"

// Type tags carried by lowered values.
const (
	TypeScalar    = "scalar"
	TypeBoolean   = "boolean"
	TypeVector    = "vector"
	TypeString    = "string"
	TypeMeshVar   = "meshvar"
	TypeHistogram = "histogram"
	TypeBinning   = "binning"
)

// Attribute keys a Result may carry next to its value.
const (
	AttPosition = "position"
	AttIndex    = "index"
	AttDomainID = "domain_id"
	AttRank     = "rank"
	AttCount    = "count"
)

// Result is the node a lowered filter stores in the registry: the value, its
// type tag, and optional side attributes such as the position of an
// extremum. Scalars hold int64 or float64; the integer representation is
// kept until a double enters the computation.
type Result struct {
	Value any
	Type  string
	Atts  map[string]any
}

// SetAtt attaches one attribute, allocating the map on first use.
func (r *Result) SetAtt(key string, v any) {
	if r.Atts == nil {
		r.Atts = make(map[string]any)
	}
	r.Atts[key] = v
}

// Att returns one attribute.
func (r *Result) Att(key string) (any, bool) {
	v, ok := r.Atts[key]
	return v, ok
}

// IsFloat reports whether a scalar result holds a double.
func (r *Result) IsFloat() bool {
	_, ok := r.Value.(float64)
	return ok
}

// Float64 returns the numeric value widened to a double.
func (r *Result) Float64() (float64, error) {
	switch v := r.Value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("result of type %s is not numeric", r.Type)
}

// Int64 returns the numeric value as an integer, truncating doubles.
func (r *Result) Int64() (int64, error) {
	switch v := r.Value.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("result of type %s is not numeric", r.Type)
}

// String returns the string payload of a string or meshvar result.
func (r *Result) String() (string, error) {
	if s, ok := r.Value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("result of type %s is not a string", r.Type)
}

// Bool returns the boolean payload.
func (r *Result) Bool() (bool, error) {
	if b, ok := r.Value.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("result of type %s is not a boolean", r.Type)
}

// Cache is the named-result history of one evaluator: per name, the ordered
// list of results, newest last. It is pinned into the registry so the
// identifier filter can read it during execution.
type Cache map[string][]*Result

// Append records a named result.
func (c Cache) Append(name string, r *Result) {
	c[name] = append(c[name], r)
}

// Latest returns the most recently cached result for a name.
func (c Cache) Latest(name string) (*Result, bool) {
	hist := c[name]
	if len(hist) == 0 {
		return nil, false
	}
	return hist[len(hist)-1], true
}
