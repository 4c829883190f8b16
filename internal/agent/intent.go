package agent

import "strings"

// Intent is the coarse classification of what a chat message asks for.
type Intent string

const (
	IntentExtract Intent = "extract_entities"
	IntentCreate  Intent = "create_entity"
	IntentList    Intent = "list_entities"
	IntentUpdate  Intent = "update_entity"
	IntentDelete  Intent = "delete_entity"
	IntentHelp    Intent = "help"
	IntentGeneral Intent = "general_conversation"
)

var intentKeywords = []struct {
	intent Intent
	words  []string
}{
	{IntentExtract, []string{"extract", "find", "identify", "discover"}},
	{IntentCreate, []string{"create", "build", "make", "add"}},
	{IntentList, []string{"list", "show", "display", "get"}},
	{IntentUpdate, []string{"update", "modify", "change", "edit"}},
	{IntentDelete, []string{"delete", "remove", "drop"}},
	{IntentHelp, []string{"help", "assist", "support"}},
}

// ClassifyIntent picks the first intent whose keyword list matches the
// message. Earlier entries win, so "extract and list" extracts.
func ClassifyIntent(message string) Intent {
	lower := strings.ToLower(message)
	for _, entry := range intentKeywords {
		for _, word := range entry.words {
			if strings.Contains(lower, word) {
				return entry.intent
			}
		}
	}
	return IntentGeneral
}
