// Package diff parses raw unified-diff text into structured per-file change
// records and reconciles them against authoritative compare metadata.
package diff

import (
	"bufio"
	"strings"

	"code-review-backend/internal/model"
)

// scanner buffer sizes; single diff lines (e.g. minified assets) can be long.
const (
	initialBufSize = 64 * 1024
	maxLineSize    = 1024 * 1024
)

// Parse scans raw unified-diff text into FileDiff records and then overwrites
// each record's status and counts with the matching metadata entry, when one
// exists. The line-scan counts remain only as a fallback for files the
// metadata does not cover. Output order follows the diff text.
func Parse(stats []model.FileStat, raw string) []model.FileDiff {
	diffs := scan(raw)
	reconcile(diffs, stats)
	return diffs
}

// scan walks the diff text line by line, keeping a current-file accumulator
// that is flushed whenever a new "diff --git" header begins.
func scan(raw string) []model.FileDiff {
	var (
		out []model.FileDiff
		cur *model.FileDiff
	)
	flush := func() {
		if cur == nil {
			return
		}
		if cur.Status == model.DiffModified && cur.OldPath != "" && cur.Path != "" && cur.OldPath != cur.Path {
			cur.Status = model.DiffRenamed
		}
		if cur.Hunks == nil {
			cur.Hunks = []string{}
		}
		out = append(out, *cur)
		cur = nil
	}

	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 0, initialBufSize), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "diff --git"):
			flush()
			cur = &model.FileDiff{Status: model.DiffModified}
		case cur == nil:
			// preamble before the first file header
		case strings.HasPrefix(line, "--- "):
			p := strings.TrimSpace(line[4:])
			if p == "/dev/null" {
				cur.Status = model.DiffAdded
			} else {
				cur.OldPath = stripRevPrefix(p)
			}
		case strings.HasPrefix(line, "+++ "):
			p := strings.TrimSpace(line[4:])
			if p == "/dev/null" {
				cur.Status = model.DiffRemoved
				cur.Path = cur.OldPath
			} else {
				cur.Path = stripRevPrefix(p)
			}
		case strings.HasPrefix(line, "rename from "):
			cur.OldPath = strings.TrimSpace(line[len("rename from "):])
			cur.Status = model.DiffRenamed
		case strings.HasPrefix(line, "rename to "):
			cur.Path = strings.TrimSpace(line[len("rename to "):])
			cur.Status = model.DiffRenamed
		case strings.HasPrefix(line, "@@"):
			cur.Hunks = append(cur.Hunks, line)
		case strings.HasPrefix(line, "+"):
			cur.Additions++
			cur.Changes++
		case strings.HasPrefix(line, "-"):
			cur.Deletions++
			cur.Changes++
		}
	}
	flush()
	return out
}

// reconcile overwrites scanned records with the metadata's authoritative
// values. Matching is by new filename first, then by previous filename so
// pure renames (which carry no +++/--- lines) still reconcile.
func reconcile(diffs []model.FileDiff, stats []model.FileStat) {
	if len(stats) == 0 {
		return
	}
	byName := make(map[string]model.FileStat, len(stats))
	byPrev := make(map[string]model.FileStat)
	for _, st := range stats {
		byName[st.Filename] = st
		if st.PreviousFilename != "" {
			byPrev[st.PreviousFilename] = st
		}
	}

	for i := range diffs {
		st, ok := byName[diffs[i].Path]
		if !ok {
			st, ok = byPrev[diffs[i].OldPath]
		}
		if !ok {
			continue
		}
		diffs[i].Additions = st.Additions
		diffs[i].Deletions = st.Deletions
		diffs[i].Changes = st.Changes
		if status := toDiffStatus(st.Status); status != "" {
			diffs[i].Status = status
		}
		if st.PreviousFilename != "" && diffs[i].OldPath == "" {
			diffs[i].OldPath = st.PreviousFilename
		}
		if diffs[i].Path == "" {
			diffs[i].Path = st.Filename
		}
	}
}

// stripRevPrefix removes the conventional a/ and b/ revision prefixes so
// paths line up with the metadata's filenames.
func stripRevPrefix(p string) string {
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}

func toDiffStatus(s string) model.DiffStatus {
	switch s {
	case "added":
		return model.DiffAdded
	case "removed":
		return model.DiffRemoved
	case "modified", "changed":
		return model.DiffModified
	case "renamed":
		return model.DiffRenamed
	}
	return ""
}
