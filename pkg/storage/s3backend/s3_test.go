package s3backend

import "testing"

func TestObjectKey(t *testing.T) {
	b := &Backend{prefix: "containers/abc"}
	cases := map[string]string{
		"/":         "containers/abc",
		"/foo":      "containers/abc/foo",
		"/foo/bar":  "containers/abc/foo/bar",
		"":          "containers/abc",
	}
	for in, want := range cases {
		if got := b.objectKey(in); got != want {
			t.Errorf("objectKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObjectKey_NoPrefix(t *testing.T) {
	b := &Backend{}
	if got := b.objectKey("/foo"); got != "foo" {
		t.Errorf("objectKey(/foo) = %q, want foo", got)
	}
}
