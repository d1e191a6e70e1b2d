package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code-review-backend/internal/model"
)

const sampleDiff = `diff --git a/new.txt b/new.txt
new file mode 100644
index 0000000..3b18e51
--- /dev/null
+++ b/new.txt
@@ -0,0 +1,3 @@
+one
+two
+three
diff --git a/main.go b/main.go
index 83db48f..bf269f4 100644
--- a/main.go
+++ b/main.go
@@ -10,3 +10,4 @@ func main() {
-	old line
+	new line
+	extra line
`

func TestParse_LineScan(t *testing.T) {
	files := Parse(nil, sampleDiff)
	require.Len(t, files, 2)

	added := files[0]
	assert.Equal(t, "new.txt", added.Path)
	assert.Equal(t, "", added.OldPath)
	assert.Equal(t, model.DiffAdded, added.Status)
	assert.Equal(t, 3, added.Additions)
	assert.Equal(t, 0, added.Deletions)
	assert.Equal(t, 3, added.Changes)
	assert.Equal(t, []string{"@@ -0,0 +1,3 @@"}, added.Hunks)

	modified := files[1]
	assert.Equal(t, "main.go", modified.Path)
	assert.Equal(t, "main.go", modified.OldPath)
	assert.Equal(t, model.DiffModified, modified.Status)
	assert.Equal(t, 2, modified.Additions)
	assert.Equal(t, 1, modified.Deletions)
	assert.Equal(t, 3, modified.Changes)
}

func TestParse_RemovedFile(t *testing.T) {
	raw := "diff --git a/gone.txt b/gone.txt\n" +
		"deleted file mode 100644\n" +
		"--- a/gone.txt\n" +
		"+++ /dev/null\n" +
		"@@ -1,2 +0,0 @@\n" +
		"-first\n" +
		"-second\n"

	files := Parse(nil, raw)
	require.Len(t, files, 1)
	assert.Equal(t, model.DiffRemoved, files[0].Status)
	assert.Equal(t, "gone.txt", files[0].Path)
	assert.Equal(t, 2, files[0].Deletions)
	assert.Equal(t, 0, files[0].Additions)
}

func TestParse_ReconciliationOverwritesCounts(t *testing.T) {
	stats := []model.FileStat{
		{Filename: "main.go", Status: "modified", Additions: 5, Deletions: 2, Changes: 7},
	}

	files := Parse(stats, sampleDiff)
	require.Len(t, files, 2)

	// Metadata wins over the line-scan counts.
	modified := files[1]
	assert.Equal(t, 5, modified.Additions)
	assert.Equal(t, 2, modified.Deletions)
	assert.Equal(t, 7, modified.Changes)

	// Files the metadata misses keep their scanned counts.
	assert.Equal(t, 3, files[0].Additions)
}

func TestParse_OrderFollowsDiffText(t *testing.T) {
	// Metadata arrives alphabetically; output must keep diff-text order.
	stats := []model.FileStat{
		{Filename: "main.go", Additions: 1, Deletions: 1, Changes: 2},
		{Filename: "new.txt", Additions: 3, Changes: 3},
	}

	files := Parse(stats, sampleDiff)
	require.Len(t, files, 2)
	assert.Equal(t, "new.txt", files[0].Path)
	assert.Equal(t, "main.go", files[1].Path)
}

func TestParse_PureRename(t *testing.T) {
	raw := "diff --git a/old/name.go b/new/name.go\n" +
		"similarity index 100%\n" +
		"rename from old/name.go\n" +
		"rename to new/name.go\n"

	stats := []model.FileStat{
		{Filename: "new/name.go", PreviousFilename: "old/name.go", Status: "renamed"},
	}

	files := Parse(stats, raw)
	require.Len(t, files, 1)
	assert.Equal(t, model.DiffRenamed, files[0].Status)
	assert.Equal(t, "new/name.go", files[0].Path)
	assert.Equal(t, "old/name.go", files[0].OldPath)
	assert.Equal(t, 0, files[0].Changes)
}

func TestParse_RenameWithEdits(t *testing.T) {
	raw := "diff --git a/old.go b/renamed.go\n" +
		"similarity index 90%\n" +
		"rename from old.go\n" +
		"rename to renamed.go\n" +
		"--- a/old.go\n" +
		"+++ b/renamed.go\n" +
		"@@ -1 +1 @@\n" +
		"-package old\n" +
		"+package renamed\n"

	files := Parse(nil, raw)
	require.Len(t, files, 1)
	assert.Equal(t, model.DiffRenamed, files[0].Status)
	assert.Equal(t, "renamed.go", files[0].Path)
	assert.Equal(t, "old.go", files[0].OldPath)
	assert.Equal(t, 1, files[0].Additions)
	assert.Equal(t, 1, files[0].Deletions)
}

func TestParse_EmptyInput(t *testing.T) {
	assert.Empty(t, Parse(nil, ""))
	assert.Empty(t, Parse(nil, "some preamble without a file header\n"))
}
