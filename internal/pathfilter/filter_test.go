package pathfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_ShouldIgnore(t *testing.T) {
	f := New(nil)

	t.Run("ignores paths with a matching directory segment", func(t *testing.T) {
		assert.True(t, f.ShouldIgnore("src/node_modules/foo.js"))
		assert.True(t, f.ShouldIgnore("node_modules"))
		assert.True(t, f.ShouldIgnore(".git/config"))
		assert.True(t, f.ShouldIgnore("app/__pycache__/mod.cpython-311.pyc"))
	})

	t.Run("segment match does not degrade to substring match", func(t *testing.T) {
		assert.False(t, f.ShouldIgnore("src/app/node_modules.ts"))
		assert.False(t, f.ShouldIgnore("src/rebuild/foo.go"))
		assert.False(t, f.ShouldIgnore("distributions/readme.md"))
	})

	t.Run("ignores compiled and archive extensions", func(t *testing.T) {
		assert.True(t, f.ShouldIgnore("build/output.exe"))
		assert.True(t, f.ShouldIgnore("lib/native.so"))
		assert.True(t, f.ShouldIgnore("release/app.tar.gz"))
		assert.True(t, f.ShouldIgnore("Archive.ZIP"))
		assert.False(t, f.ShouldIgnore("src/main.go"))
		assert.False(t, f.ShouldIgnore("docs/exercise.md"))
	})

	t.Run("ignores IDE and OS metadata", func(t *testing.T) {
		assert.True(t, f.ShouldIgnore(".idea/workspace.xml"))
		assert.True(t, f.ShouldIgnore("photos/.DS_Store"))
	})

	t.Run("wildcard tokens glob-match", func(t *testing.T) {
		assert.True(t, f.ShouldIgnore("src/mypkg.egg-info"))
		assert.False(t, f.ShouldIgnore("src/egg-information.txt"))
	})

	t.Run("root and empty paths are never ignored", func(t *testing.T) {
		assert.False(t, f.ShouldIgnore(""))
		assert.False(t, f.ShouldIgnore("/"))
	})
}

func TestFilter_CustomPatterns(t *testing.T) {
	f := New([]string{"generated", "*.snap"})

	assert.True(t, f.ShouldIgnore("api/generated/client.go"))
	assert.True(t, f.ShouldIgnore("ui/__tests__/button.snap"))
	assert.False(t, f.ShouldIgnore("src/node_modules/foo.js"), "custom patterns replace the defaults")
}
