package record

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

func TestValue_Text(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"string", String("Alice"), "Alice"},
		{"empty string", String(""), ""},
		{"integer number", Number(94212), "94212"},
		{"fraction", Number(0.1), "0.1"},
		{"negative", Number(-12.5), "-12.5"},
		{"large number has no grouping or exponent", Number(1234567890123), "1234567890123"},
		{"true", Bool(true), "true"},
		{"false", Bool(false), "false"},
		{"null", Null(), ""},
		{"zero value is null", Value{}, ""},
		{"nan", Number(math.NaN()), "NaN"},
		{"positive infinity", Number(math.Inf(1)), "Infinity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValue_Kinds(t *testing.T) {
	if k := (Value{}).Kind(); k != KindNull {
		t.Errorf("zero Value kind = %v, want null", k)
	}
	if s, ok := String("x").Str(); !ok || s != "x" {
		t.Errorf("Str() = %q, %v", s, ok)
	}
	if _, ok := Number(1).Str(); ok {
		t.Error("number reported as string")
	}
	if n, ok := Number(2.5).Num(); !ok || n != 2.5 {
		t.Errorf("Num() = %v, %v", n, ok)
	}
	if b, ok := Bool(true).Boolean(); !ok || !b {
		t.Errorf("Boolean() = %v, %v", b, ok)
	}
	if String("1").Equal(Number(1)) {
		t.Error("string and number with same text must not be equal")
	}
}

func TestValue_JSON(t *testing.T) {
	r := FromFields(
		Field{"s", String("a")},
		Field{"n", Number(3)},
		Field{"b", Bool(false)},
		Field{"z", Null()},
	)
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"s":"a","n":3,"b":false,"z":null}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(r) {
		t.Errorf("round trip mismatch: got %v", back.Keys())
	}
}

func TestRecord_SetKeepsPosition(t *testing.T) {
	var r Record
	r.Set("a", String("1"))
	r.Set("b", String("2"))
	r.Set("a", String("3"))

	if got := r.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Keys() = %v", got)
	}
	if v, _ := r.Get("a"); v.Text() != "3" {
		t.Errorf("a = %q, want 3", v.Text())
	}
	if r.Has("c") {
		t.Error("unexpected key c")
	}
}

func TestRemap(t *testing.T) {
	input := FromFields(
		Field{"name", String("Alice")},
		Field{"zip", String("94212")},
		Field{"extra", String("dropped")},
	)

	tests := []struct {
		name     string
		mapping  FieldMapping
		wantKeys []string
		wantVals []string
	}{
		{
			name: "rename and project",
			mapping: FieldMapping{
				{Source: "name", Target: "email"},
				{Source: "zip", Target: "zip_code"},
			},
			wantKeys: []string{"email", "zip_code"},
			wantVals: []string{"Alice", "94212"},
		},
		{
			name:     "empty mapping drops everything",
			mapping:  nil,
			wantKeys: []string{},
		},
		{
			name:     "empty target is ignored",
			mapping:  FieldMapping{{Source: "name", Target: ""}},
			wantKeys: []string{},
		},
		{
			name: "output follows mapping order",
			mapping: FieldMapping{
				{Source: "zip", Target: "z"},
				{Source: "name", Target: "n"},
			},
			wantKeys: []string{"z", "n"},
			wantVals: []string{"94212", "Alice"},
		},
		{
			name: "sources absent from the record are skipped",
			mapping: FieldMapping{
				{Source: "missing", Target: "m"},
				{Source: "name", Target: "n"},
			},
			wantKeys: []string{"n"},
			wantVals: []string{"Alice"},
		},
		{
			name: "duplicate source: last target wins at first position",
			mapping: FieldMapping{
				{Source: "name", Target: "first"},
				{Source: "zip", Target: "zip_code"},
				{Source: "name", Target: "second"},
			},
			wantKeys: []string{"second", "zip_code"},
			wantVals: []string{"Alice", "94212"},
		},
		{
			name: "duplicate source: later empty target unsets",
			mapping: FieldMapping{
				{Source: "name", Target: "email"},
				{Source: "name", Target: ""},
			},
			wantKeys: []string{},
		},
		{
			name: "two sources to one target: later value wins",
			mapping: FieldMapping{
				{Source: "name", Target: "id"},
				{Source: "zip", Target: "id"},
			},
			wantKeys: []string{"id"},
			wantVals: []string{"94212"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Remap(input, tt.mapping)
			if keys := got.Keys(); !reflect.DeepEqual(keys, tt.wantKeys) {
				t.Fatalf("keys = %v, want %v", keys, tt.wantKeys)
			}
			for i, k := range tt.wantKeys {
				v, _ := got.Get(k)
				if v.Text() != tt.wantVals[i] {
					t.Errorf("%s = %q, want %q", k, v.Text(), tt.wantVals[i])
				}
			}
		})
	}
}

func TestRemap_ProjectionProperty(t *testing.T) {
	records := []Record{
		FromFields(Field{"a", String("1")}, Field{"b", Number(2)}, Field{"c", Bool(true)}),
		FromFields(Field{"c", Null()}),
		New(0),
	}
	mappings := []FieldMapping{
		{{Source: "a", Target: "x"}, {Source: "c", Target: ""}},
		{{Source: "b", Target: "y"}, {Source: "q", Target: "z"}},
		{},
	}

	for _, m := range mappings {
		allowed := make(map[string]bool)
		for _, target := range m.Compile().Targets() {
			allowed[target] = true
		}
		for _, r := range records {
			out := Remap(r, m)
			for _, k := range out.Keys() {
				if k == "" || !allowed[k] {
					t.Errorf("key %q not a declared non-empty target of %v", k, m)
				}
			}
			if len(m) == 0 && out.Len() != 0 {
				t.Errorf("empty mapping produced %v", out.Keys())
			}
		}
	}
}

func TestRemap_PreservesValueKind(t *testing.T) {
	r := FromFields(Field{"qty", Number(7)}, Field{"ok", Bool(true)})
	out := Remap(r, FieldMapping{{Source: "qty", Target: "quantity"}, {Source: "ok", Target: "valid"}})

	if v, _ := out.Get("quantity"); v.Kind() != KindNumber {
		t.Errorf("quantity kind = %v, want number", v.Kind())
	}
	if v, _ := out.Get("valid"); v.Kind() != KindBool {
		t.Errorf("valid kind = %v, want bool", v.Kind())
	}
}

func TestFieldMapping_Sources(t *testing.T) {
	m := FieldMapping{{"a", "x"}, {"b", ""}, {"a", "y"}}
	if got := m.Sources(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Sources() = %v", got)
	}
}
