package imgsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want Reference
	}{
		{
			name: "collection image and tag",
			in:   "col/img:tag",
			want: Reference{Collection: "col", Image: "img", Tag: "tag"},
		},
		{
			name: "image only",
			in:   "img",
			want: Reference{Collection: DefaultCollection, Image: "img", Tag: DefaultTag},
		},
		{
			name: "with version",
			in:   "library/ubuntu:16.04@v1",
			want: Reference{Collection: "library", Image: "ubuntu", Tag: "16.04", Version: "v1"},
		},
		{
			name: "scheme is stripped",
			in:   "shub://vsoch/hello-world",
			want: Reference{Collection: "vsoch", Image: "hello-world", Tag: DefaultTag},
		},
		{
			name: "nested collection",
			in:   "org/team/tool:1.0",
			want: Reference{Collection: "org/team", Image: "tool", Tag: "1.0"},
		},
		{
			name: "extension and case",
			in:   "Library/Busybox.SIMG",
			want: Reference{Collection: "library", Image: "busybox", Tag: DefaultTag},
		},
		{
			name: "empty tag falls back",
			in:   "col/img:",
			want: Reference{Collection: "col", Image: "img", Tag: DefaultTag},
		},
		{
			name: "missing image",
			in:   "col/",
			want: Reference{Collection: "col", Image: "", Tag: DefaultTag},
		},
		{
			name: "empty input",
			in:   "",
			want: Reference{Collection: DefaultCollection, Image: "", Tag: DefaultTag},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseReference(tt.in))
		})
	}
}

func TestParseReference_DefaultCollection(t *testing.T) {
	t.Parallel()

	ref := ParseReference("img", WithDefaultCollection("mine"), WithDefaultTag("stable"))
	assert.Equal(t, Reference{Collection: "mine", Image: "img", Tag: "stable"}, ref)
}

func TestParseReference_NeverPanics(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"://", "@", ":", "/", "a@b@c", "::::", "x/y/z:@", "oci://", " / : @ "} {
		assert.NotPanics(t, func() { ParseReference(in) }, in)
	}
}

func TestReference_FileName(t *testing.T) {
	t.Parallel()

	ref := ParseReference("library/ubuntu:16.04")
	assert.Equal(t, "library/ubuntu-16.04", ref.Slug())
	assert.Equal(t, "library-ubuntu-16.04", ref.FileName())
	assert.Equal(t, "library/ubuntu:16.04", ref.String())

	nested := ParseReference("a/b/c:d@v2")
	assert.Equal(t, "a-b-c-d@v2", nested.FileName())
}

func TestReference_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, ParseReference("col/img").Valid())
	assert.False(t, ParseReference("col/").Valid())
}
