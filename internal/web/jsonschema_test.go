package web

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/schema"
)

func TestPropertySchemaEndpoint(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/api/properties/ledLimit/schema", "")
	require.Equal(t, http.StatusOK, status)
	s := decode(t, body)
	assert.Equal(t, "ledLimit", s["title"])
	assert.Equal(t, "integer", s["type"])
	assert.Equal(t, float64(1), s["minimum"])
	assert.Equal(t, float64(1024), s["maximum"])

	status, body = ts.do(t, http.MethodGet, "/api/properties/segment/schema", "")
	require.Equal(t, http.StatusOK, status)
	s = decode(t, body)
	assert.Equal(t, "object", s["type"])
	props := s["properties"].(map[string]any)
	assert.Equal(t, "integer", props["start"].(map[string]any)["type"])
	assert.Equal(t, float64(65535), props["length"].(map[string]any)["maximum"])

	status, body = ts.do(t, http.MethodGet, "/api/properties/palette/schema", "")
	require.Equal(t, http.StatusOK, status)
	s = decode(t, body)
	assert.Equal(t, "array", s["type"])
	assert.Equal(t, float64(16), s["maxItems"])
	items := s["items"].(map[string]any)
	assert.Equal(t, float64(3), items["minItems"])

	status, body = ts.do(t, http.MethodGet, "/api/properties/status/schema", "")
	require.Equal(t, http.StatusOK, status)
	s = decode(t, body)
	assert.Equal(t, true, s["readOnly"])
	assert.Len(t, s["oneOf"], 2)

	status, _ = ts.do(t, http.MethodGet, "/api/properties/wifiPass/schema", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPropertySchema(t *testing.T) {
	tests := []struct {
		name  string
		prop  property.Property
		check func(t *testing.T, s map[string]any)
	}{
		{
			name: "bool",
			prop: property.New("on", true),
			check: func(t *testing.T, s map[string]any) {
				assert.Equal(t, "boolean", s["type"])
			},
		},
		{
			name: "signed range",
			prop: property.New[int8]("trim", 0),
			check: func(t *testing.T, s map[string]any) {
				assert.Equal(t, int64(-128), s["minimum"])
				assert.Equal(t, int64(127), s["maximum"])
			},
		},
		{
			name: "step from zero",
			prop: property.New[uint8]("level", 0, property.WithConstraints(schema.AtMost[uint8](100).WithStep(10))),
			check: func(t *testing.T, s map[string]any) {
				assert.Equal(t, uint8(10), s["multipleOf"])
				assert.Equal(t, uint8(100), s["maximum"])
			},
		},
		{
			name: "step from offset has no multipleOf",
			prop: property.New[uint8]("odd", 1, property.WithConstraints(schema.Between[uint8](1, 9).WithStep(2))),
			check: func(t *testing.T, s map[string]any) {
				assert.NotContains(t, s, "multipleOf")
			},
		},
		{
			name: "enum",
			prop: property.New[uint8]("mode", 1, property.WithConstraints(schema.OneOf[uint8](1, 2, 4))),
			check: func(t *testing.T, s map[string]any) {
				assert.Equal(t, []any{uint8(1), uint8(2), uint8(4)}, s["enum"])
			},
		},
		{
			name: "bounded string",
			prop: property.New("label", "", property.WithContainer(schema.MaxLen(8))),
			check: func(t *testing.T, s map[string]any) {
				assert.Equal(t, "string", s["type"])
				assert.Equal(t, uint32(8), s["maxLength"])
			},
		},
		{
			name: "description",
			prop: property.New[float32]("gamma", 2.2, property.WithDescription("output gamma")),
			check: func(t *testing.T, s map[string]any) {
				assert.Equal(t, "number", s["type"])
				assert.Equal(t, "output gamma", s["description"])
			},
		},
		{
			name: "resource",
			prop: property.NewResource("files", 2, 4, nil),
			check: func(t *testing.T, s map[string]any) {
				assert.Equal(t, true, s["readOnly"])
				assert.Contains(t, s["properties"], "resources")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := PropertySchema(tt.prop)
			require.NoError(t, err)
			assert.Equal(t, tt.prop.Name(), s["title"])
			assert.Equal(t, draft, s["$schema"])
			tt.check(t, s)
		})
	}
}
