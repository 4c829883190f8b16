package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/facetlabs/facet/pkg/types"
)

// SummarizeRelationships renders the stored relationship graph as a short
// human-readable report. Edges whose target entity no longer exists are
// labelled as stale rather than hidden, since the graph is only
// recomputed on the next create or manual detection.
func SummarizeRelationships(entities []types.Entity) string {
	byID := make(map[string]*types.Entity, len(entities))
	for i := range entities {
		byID[entities[i].EntityID] = &entities[i]
	}

	var lines []string
	total := 0
	for i := range entities {
		source := &entities[i]
		if len(source.Relationships) == 0 {
			continue
		}

		targetIDs := make([]string, 0, len(source.Relationships))
		for targetID := range source.Relationships {
			targetIDs = append(targetIDs, targetID)
		}
		sort.Strings(targetIDs)

		for _, targetID := range targetIDs {
			targetName := targetID + " (deleted)"
			if target, ok := byID[targetID]; ok {
				targetName = target.EntityName
			}
			for _, rec := range source.Relationships[targetID].Relationships {
				total++
				line := fmt.Sprintf("- '%s' %s '%s' (confidence %.2f)", source.EntityName, rec.Type, targetName, rec.Confidence)
				if rec.Description != "" {
					line += ": " + rec.Description
				}
				lines = append(lines, line)
			}
		}
	}

	if total == 0 {
		return "No relationships detected between entities."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relationships across %d entities:\n", total, len(entities))
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}
