package filter

// Class names understood by the proxy
const (
	ClassAlways    = "filter.AlwaysFilter"
	ClassNever     = "filter.NeverFilter"
	ClassEqual     = "filter.EqualsFilter"
	ClassNotEqual  = "filter.NotEqualsFilter"
	ClassGreater   = "filter.GreaterFilter"
	ClassLess      = "filter.LessFilter"
	ClassPresent   = "filter.PresentFilter"
	ClassAnd       = "filter.AllFilter"
	ClassOr        = "filter.AnyFilter"
	ClassNot       = "filter.NotFilter"
	ClassMapEvent  = "filter.MapEventFilter"
	ClassIdentity  = "extractor.IdentityExtractor"
	ClassUniversal = "extractor.UniversalExtractor"
)

// Event masks of MapEvent
const (
	Inserted = 1 << iota
	Updated
	Deleted

	AllEvents = Inserted | Updated | Deleted
)

// Filter is a serializable predicate descriptor. It carries no logic, the
// cluster evaluates it against the entries of a map.
type Filter struct {
	Class     string     `json:"@class" msgpack:"@class"`
	Extractor *Extractor `json:"extractor,omitempty" msgpack:"extractor,omitempty"`
	Value     any        `json:"value,omitempty" msgpack:"value,omitempty"`
	Filters   []*Filter  `json:"filters,omitempty" msgpack:"filters,omitempty"`
	Filter    *Filter    `json:"filter,omitempty" msgpack:"filter,omitempty"`
	Mask      int        `json:"mask,omitempty" msgpack:"mask,omitempty"`
}

// Extractor selects the value a filter compares
type Extractor struct {
	Class string `json:"@class" msgpack:"@class"`
	Name  string `json:"name,omitempty" msgpack:"name,omitempty"`
}

// Extract returns an extractor reading the named property of a value.
// Nested properties are separated by dots.
func Extract(property string) *Extractor {
	return &Extractor{Class: ClassUniversal, Name: property}
}

// Identity returns an extractor returning the value itself
func Identity() *Extractor {
	return &Extractor{Class: ClassIdentity}
}

// Always matches every entry
func Always() *Filter {
	return &Filter{Class: ClassAlways}
}

// Never matches no entry
func Never() *Filter {
	return &Filter{Class: ClassNever}
}

// Equal matches entries whose extracted value equals v
func Equal(e *Extractor, v any) *Filter {
	return &Filter{Class: ClassEqual, Extractor: e, Value: v}
}

// NotEqual matches entries whose extracted value differs from v
func NotEqual(e *Extractor, v any) *Filter {
	return &Filter{Class: ClassNotEqual, Extractor: e, Value: v}
}

// Greater matches entries whose extracted value is greater than v
func Greater(e *Extractor, v any) *Filter {
	return &Filter{Class: ClassGreater, Extractor: e, Value: v}
}

// Less matches entries whose extracted value is less than v
func Less(e *Extractor, v any) *Filter {
	return &Filter{Class: ClassLess, Extractor: e, Value: v}
}

// Present matches entries where the extractor yields a value
func Present(e *Extractor) *Filter {
	return &Filter{Class: ClassPresent, Extractor: e}
}

// And matches entries matched by all filters
func And(filters ...*Filter) *Filter {
	return &Filter{Class: ClassAnd, Filters: filters}
}

// Or matches entries matched by at least one filter
func Or(filters ...*Filter) *Filter {
	return &Filter{Class: ClassOr, Filters: filters}
}

// Not inverts f
func Not(f *Filter) *Filter {
	return &Filter{Class: ClassNot, Filter: f}
}

// MapEvent restricts a listener filter to the event kinds in mask. A nil
// inner filter matches every entry.
func MapEvent(mask int, inner *Filter) *Filter {
	return &Filter{Class: ClassMapEvent, Mask: mask, Filter: inner}
}

// And returns a filter matching entries matched by f and other
func (f *Filter) And(other *Filter) *Filter {
	return And(f, other)
}

// Or returns a filter matching entries matched by f or other
func (f *Filter) Or(other *Filter) *Filter {
	return Or(f, other)
}
