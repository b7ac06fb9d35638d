package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "languages.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadLanguagesDefaults(t *testing.T) {
	cat, err := LoadLanguages("")
	require.NoError(t, err)

	py, ok := cat.Resolve("python")
	require.True(t, ok)
	require.Equal(t, 71, py.ID)

	js, ok := cat.Resolve("63")
	require.True(t, ok)
	require.Equal(t, "javascript", js.Slug)

	_, ok = cat.Resolve("brainfuck")
	require.False(t, ok)
}

func TestLoadLanguagesFromFile(t *testing.T) {
	path := writeFile(t, `
[[language]]
id = 71
slug = "Python"
name = "Python 3"
active = true

[[language]]
id = 60
slug = "go"
name = "Go"
active = false
`)
	cat, err := LoadLanguages(path)
	require.NoError(t, err)

	py, ok := cat.Resolve("python")
	require.True(t, ok)
	require.Equal(t, "Python 3", py.Name)

	_, ok = cat.Resolve("go")
	require.False(t, ok, "inactive languages are not resolvable")
	require.Len(t, cat.List(), 2)
}

func TestLoadLanguagesRejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"empty":     ``,
		"no id":     "[[language]]\nslug = \"python\"\n",
		"duplicate": "[[language]]\nid = 1\nslug = \"a\"\n[[language]]\nid = 2\nslug = \"a\"\n",
		"syntax":    "[[language]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadLanguages(writeFile(t, body))
			require.Error(t, err)
		})
	}

	_, err := LoadLanguages(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
