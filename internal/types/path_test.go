package types

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    []PathSegment
		wantErr error
	}{
		{name: "empty", path: "", want: nil},
		{name: "single key", path: "start", want: []PathSegment{{Key: "start"}}},
		{name: "nested keys", path: "a.b", want: []PathSegment{{Key: "a"}, {Key: "b"}}},
		{
			name: "key with index",
			path: "palette[2]",
			want: []PathSegment{{Key: "palette"}, {Index: 2, IsIndex: true}},
		},
		{
			name: "double index",
			path: "palette[2][0]",
			want: []PathSegment{{Key: "palette"}, {Index: 2, IsIndex: true}, {Index: 0, IsIndex: true}},
		},
		{name: "bare index", path: "[1]", want: []PathSegment{{Index: 1, IsIndex: true}}},
		{name: "empty segment", path: "a..b", wantErr: ErrInvalidPath},
		{name: "negative index", path: "a[-1]", wantErr: ErrInvalidPath},
		{name: "unterminated index", path: "a[1", wantErr: ErrInvalidPath},
		{name: "too deep", path: strings.Repeat("a.", MaxPathDepth) + "a", wantErr: ErrPathTooDeep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParsePath(%q) error = %v, want %v", tt.path, err, tt.wantErr)
			}
			if tt.wantErr == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestTypeIDTable(t *testing.T) {
	tests := []struct {
		id    TypeID
		name  string
		size  int
		basic bool
	}{
		{TypeBool, "bool", 1, true},
		{TypeInt8, "int8", 1, true},
		{TypeUint16, "uint16", 2, true},
		{TypeInt32, "int32", 4, true},
		{TypeFloat64, "float64", 8, true},
		{TypeString, "string", 0, false},
		{TypeObject, "object", 0, false},
		{TypeResource, "resource", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.id.Size(); got != tt.size {
				t.Errorf("Size() = %d, want %d", got, tt.size)
			}
			if got := tt.id.IsBasic(); got != tt.basic {
				t.Errorf("IsBasic() = %v, want %v", got, tt.basic)
			}
			back, ok := LookupType(tt.name)
			if !ok || back != tt.id {
				t.Errorf("LookupType(%q) = %v, %v, want %v", tt.name, back, ok, tt.id)
			}
		})
	}

	if TypeID(0x7F).Valid() {
		t.Error("Valid() = true for unknown id")
	}
}

func TestConnID(t *testing.T) {
	id := NewConnID()
	if _, err := ParseConnID(string(id)); err != nil {
		t.Fatalf("ParseConnID(NewConnID()) error = %v", err)
	}
	if _, err := ParseConnID("not-a-uuid"); err == nil {
		t.Error("ParseConnID(garbage) error = nil, want error")
	}
	if ConnID("bad").SessionToken() != 0 {
		t.Error("SessionToken() of invalid id should be 0")
	}
}
