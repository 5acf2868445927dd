package util

import (
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"Plain", "domains.txt", "domains.txt"},
		{"Traversal", "../../etc/passwd", "_.._etc_passwd"},
		{"Windows path", `C:\Users\me\list.csv`, "C__Users_me_list.csv"},
		{"Hidden", ".bashrc", "bashrc"},
		{"Dots only", "..", "upload"},
		{"Empty", "", "upload"},
		{"Control chars", "a\nb\tc.txt", "a_b_c.txt"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, SanitizeFilename(tc.input), tc.want)
		})
	}
}

func TestSanitizeFilenameKeepsExtensionWhenTruncating(t *testing.T) {
	t.Parallel()
	got := SanitizeFilename(strings.Repeat("a", 300) + ".csv")
	assert.Equal(t, len(got), maxFilenameLength)
	assert.Assert(t, strings.HasSuffix(got, ".csv"))
}

func TestContentAddressedName(t *testing.T) {
	t.Parallel()
	a := ContentAddressedName([]byte("example.com\n"), "list.txt")
	b := ContentAddressedName([]byte("example.com\n"), "list.txt")
	c := ContentAddressedName([]byte("example.org\n"), "list.txt")

	assert.Equal(t, a, b)
	assert.Assert(t, a != c)
	assert.Assert(t, strings.HasSuffix(a, "-list.txt"))
	assert.Equal(t, len(a), 16+1+len("list.txt"))
}
