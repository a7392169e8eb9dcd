package serializer

import (
	"bytes"
	"reflect"
	"testing"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":    NewJSONSerializer,
	"GOB":     NewGOBSerializer,
	"Msgpack": NewMsgpackSerializer,
}

// person is a typical application value stored in a named map
type person struct {
	Name  string
	Age   int
	Tags  []string
	Attrs map[string]string
}

// testValues creates a set of test values with different fields filled
func testValues() []person {
	return []person{
		// Only a name
		{Name: "alice"},

		// Scalars
		{Name: "bob", Age: 42},

		// Everything filled
		{
			Name:  "carol",
			Age:   7,
			Tags:  []string{"a", "b", "c"},
			Attrs: map[string]string{"city": "Ulm", "team": "blue"},
		},
	}
}

// TestSerializerRoundTrip tests that values can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	values := testValues()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, v := range values {
				// Serialize
				data, err := serializer.Serialize(v)
				if err != nil {
					t.Errorf("Failed to serialize value %d: %v", i, err)
					continue
				}

				// Deserialize
				var result person
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize value %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(v, result) {
					t.Errorf("Value %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, v, result)
				}
			}
		})
	}
}

// TestScalarKeys tests the key types most maps use
func TestScalarKeys(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize("key-1")
			if err != nil {
				t.Fatalf("Failed to serialize string: %v", err)
			}
			var s string
			if err := serializer.Deserialize(data, &s); err != nil || s != "key-1" {
				t.Errorf("String mismatch: got %q (err %v)", s, err)
			}

			data, err = serializer.Serialize(int64(-17))
			if err != nil {
				t.Fatalf("Failed to serialize int: %v", err)
			}
			var n int64
			if err := serializer.Deserialize(data, &n); err != nil || n != -17 {
				t.Errorf("Int mismatch: got %d (err %v)", n, err)
			}
		})
	}
}

// TestDeterministicMaps tests that equal maps produce equal bytes. Listener
// groups are keyed by these bytes.
func TestDeterministicMaps(t *testing.T) {
	for _, name := range []string{"JSON", "Msgpack"} {
		t.Run(name, func(t *testing.T) {
			serializer := testSerializers[name]()
			m := map[string]int{}
			for i, k := range []string{"q", "w", "e", "r", "t", "z", "u", "i", "o", "p"} {
				m[k] = i
			}

			first, err := serializer.Serialize(m)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			for i := 0; i < 20; i++ {
				next, err := serializer.Serialize(m)
				if err != nil {
					t.Fatalf("Failed to serialize: %v", err)
				}
				if !bytes.Equal(first, next) {
					t.Fatalf("Serialization is not deterministic:\n%x\n%x", first, next)
				}
			}
		})
	}
}

// TestInvalidData tests how the serializers handle corrupt data
func TestInvalidData(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{
			name: "Empty data",
			data: []byte{},
		},
		{
			name: "Truncated data",
			data: []byte{0xc1},
		},
	}

	for name, factory := range testSerializers {
		for _, tc := range testCases {
			t.Run(name+"_"+tc.name, func(t *testing.T) {
				var result person
				if err := factory().Deserialize(tc.data, &result); err == nil {
					t.Errorf("Expected error but got none")
				}
			})
		}
	}
}

// TestNew tests the lookup of serializers by format name
func TestNew(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatMsgpack, FormatGOB} {
		s, err := New(format)
		if err != nil {
			t.Fatalf("Unexpected error for %s: %v", format, err)
		}
		if s.Format() != format {
			t.Errorf("Format mismatch: expected %s, got %s", format, s.Format())
		}
	}

	if _, err := New("yaml"); err == nil {
		t.Errorf("Expected error for unknown format")
	}
}
