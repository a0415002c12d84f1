package daemon

import "testing"

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"*.yaml", "photos/container.yaml", true},
		{"*.yaml", "photos/container.yaml.bak", false},
		{"container.yaml", "a/b/container.yaml", true},
		{"/photos/*.yaml", "photos/container.yaml", true},
		{"/photos/*.yaml", "albums/photos/container.yaml", false},
		{"", "anything", true},
	}
	for _, c := range cases {
		if got := matchPattern(c.pattern, c.path); got != c.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}
