package web

import (
	"reflect"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    Params
		ok      bool
	}{
		{name: "literal", pattern: "/ping", path: "/ping", ok: true},
		{name: "literal mismatch", pattern: "/ping", path: "/pong"},
		{name: "one param", pattern: "/api/user/{id}", path: "/api/user/123", want: Params{"id": "123"}, ok: true},
		{
			name: "two params", pattern: "/api/user/{userId}/posts/{postId}", path: "/api/user/123/posts/456",
			want: Params{"userId": "123", "postId": "456"}, ok: true,
		},
		{name: "trailing slash on path", pattern: "/api/test", path: "/api/test/", ok: true},
		{name: "trailing slash on pattern", pattern: "/api/test/", path: "/api/test", ok: true},
		{name: "empty param segment", pattern: "/api/user/{id}/posts", path: "/api/user//posts"},
		{name: "pattern longer", pattern: "/api/user/{id}", path: "/api/user"},
		{name: "path longer", pattern: "/api/user/{id}", path: "/api/user/123/extra"},
		{name: "root", pattern: "/", path: "/", ok: true},
		{name: "root against segment", pattern: "/api", path: "/"},
		{
			name: "pattern without leading slash", pattern: "api/v1/user/{userid}/avatar", path: "/api/v1/user/abc123/avatar",
			want: Params{"userid": "abc123"}, ok: true,
		},
		{name: "braces need a name", pattern: "/api/{}", path: "/api/{}", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Match(tt.pattern, tt.path)
			if ok != tt.ok {
				t.Fatalf("Match(%q, %q) ok = %v, want %v", tt.pattern, tt.path, ok, tt.ok)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}
