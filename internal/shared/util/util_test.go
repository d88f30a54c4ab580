package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePatternPath(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Empty", input: "", expected: ""},
		{name: "Dot", input: ".", expected: ""},
		{name: "LeadingDotSlash", input: "  ./dist/*.css  ", expected: "dist/*.css"},
		{name: "Backslashes", input: `packages\ui`, expected: "packages/ui"},
		{name: "Parent", input: "src/../lib/index.js", expected: "lib/index.js"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizePatternPath(tc.input))
		})
	}
}

func TestSortedStringKeys(t *testing.T) {
	assert.Equal(t, []string{"@a", "@b", "~"}, SortedStringKeys(map[string]string{"~": "./src", "@b": "./b", "@a": "./a"}))
	assert.Empty(t, SortedStringKeys(map[string]int(nil)))
}

func TestWriteFileWithDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dist", "assets", "out.js")
	require.NoError(t, WriteFileWithDirs(path, []byte("console.log(1);\n"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "console.log(1);\n", string(got))
}
