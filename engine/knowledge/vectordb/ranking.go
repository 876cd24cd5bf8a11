package vectordb

import (
	"sort"

	"github.com/compozy/transcripts/engine/knowledge/docid"
)

// Rank applies the two-level ranking: keep the best maxPerDocument matches
// of every document (similarity desc, then sequence index asc), then order
// the survivors globally (similarity desc, document id asc, sequence index
// asc) and cap at maxResults. Non-positive limits disable the matching cap.
// The input slice is not modified.
func Rank(matches []Match, maxPerDocument, maxResults int) []Match {
	if len(matches) == 0 {
		return []Match{}
	}
	ranked := make([]Match, len(matches))
	copy(ranked, matches)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		return a.Index < b.Index
	})
	survivors := ranked[:0]
	perDoc := 0
	for i := range ranked {
		if i == 0 || ranked[i].DocumentID != ranked[i-1].DocumentID {
			perDoc = 0
		}
		perDoc++
		if maxPerDocument > 0 && perDoc > maxPerDocument {
			continue
		}
		survivors = append(survivors, ranked[i])
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Index < b.Index
	})
	if maxResults > 0 && len(survivors) > maxResults {
		survivors = survivors[:maxResults]
	}
	return survivors
}

// planMigration decides, for a sorted list of stored ids, which are renamed
// to their normalized form and which are dropped because the normalized id
// is already taken.
func planMigration(ids []string) *MigrationReport {
	report := &MigrationReport{Renamed: []IDChange{}, Dropped: []IDChange{}, Skipped: []string{}}
	taken := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if docid.Normalize(id) == id {
			taken[id] = struct{}{}
		}
	}
	for _, id := range ids {
		target := docid.Normalize(id)
		switch {
		case target == id:
			continue
		case target == "":
			report.Skipped = append(report.Skipped, id)
		default:
			change := IDChange{From: id, To: target}
			if _, exists := taken[target]; exists {
				report.Dropped = append(report.Dropped, change)
				continue
			}
			taken[target] = struct{}{}
			report.Renamed = append(report.Renamed, change)
		}
	}
	return report
}
