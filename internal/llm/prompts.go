package llm

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Default prompt templates. Operators can override any of them through a
// YAML file; see NewLibraryFromFile.
const (
	defaultSystemPrompt = `You are an entity extraction agent.

Your job is to:
1. Analyze the provided domain fields and asset columns
2. Create meaningful business entities
3. Return them as JSON so they can be saved

APPROACH:
- Create ONE OR MORE meaningful business entities
- Each entity should have MULTIPLE attributes underneath it
- Think hierarchically: Entity -> Attributes
- Focus on business value and relationships

Return a JSON object with this structure and nothing else:
{
  "entities": [
    {
      "entity_name": "Main Business Entity Name",
      "entity_type": "field|asset|business_metric|derived_insight",
      "entity_value": "Entity description",
      "confidence": 0.95,
      "source_field": "Source field name",
      "description": "Detailed description",
      "attributes": [
        {
          "attribute_name": "Attribute Name",
          "attribute_value": "Attribute Value",
          "attribute_type": "string|number|boolean",
          "confidence": 0.9,
          "source_field": "Source",
          "description": "Attribute description"
        }
      ]
    }
  ]
}

EXAMPLES:
- Entity: "Credit Account" with attributes: "Account ID", "Credit Score", "Account Type"
- Entity: "Customer Profile" with attributes: "Customer ID", "Risk Rating", "Credit Limit"
- Entity: "Transaction" with attributes: "Transaction ID", "Amount", "Date", "Type"

Create 1-3 meaningful entities, each with 2-5 relevant attributes from the provided data.`

	defaultEntityCreationPrompt = `The user wants to create an entity. They said: "{message}"

Context: {context}

Based on their request, create a JSON structure for an entity with the following format:
{
  "entity_name": "Entity Name",
  "entity_type": "business_metric|field|asset|derived_insight",
  "entity_value": "Description of the entity",
  "description": "Detailed description",
  "attributes": [
    {
      "attribute_name": "Attribute Name",
      "attribute_value": "Attribute Value",
      "attribute_type": "string|number|boolean",
      "description": "Attribute description"
    }
  ]
}

Return only the JSON, no other text.`

	defaultGeneralPrompt = `You are a helpful assistant for entity extraction and management. The user said: "{message}"

Context about this session:
- Domain fields available: {field_count}
- Asset columns available: {column_count}
- Entities created so far: {entity_count}

Provide a helpful response that guides them toward entity extraction or creation. Be friendly and suggest what they can do next.`
)

// Library holds the agent's prompt templates. Templates come from the
// embedded defaults, optionally overlaid by a YAML file that is reloaded
// in place whenever it changes on disk.
type Library struct {
	mu        sync.RWMutex
	overrides map[string]string
	path      string
	watcher   *fsnotify.Watcher
	done      chan struct{}
}

// NewLibrary returns a library serving only the embedded defaults.
func NewLibrary() *Library {
	return &Library{overrides: map[string]string{}}
}

// NewLibraryFromFile loads YAML overrides (a flat map of template name to
// template text) and watches the file for changes. Recognized names:
// system, entity_creation, general.
func NewLibraryFromFile(path string) (*Library, error) {
	lib := &Library{
		overrides: map[string]string{},
		path:      path,
		done:      make(chan struct{}),
	}
	if err := lib.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt watcher: %w", err)
	}
	// Watch the directory, not the file: editors that rename-on-save
	// would otherwise drop the watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch prompt dir: %w", err)
	}
	lib.watcher = watcher
	go lib.watch()

	log.Printf("llm: prompt overrides loaded from %s", path)
	return lib, nil
}

func (l *Library) watch() {
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Name != l.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := l.reload(); err != nil {
				log.Printf("llm: prompt reload failed, keeping previous templates: %v", err)
				continue
			}
			log.Printf("llm: prompts reloaded from %s", l.path)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("llm: prompt watcher error: %v", err)
		}
	}
}

func (l *Library) reload() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to read prompt file: %w", err)
	}
	overrides := map[string]string{}
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return fmt.Errorf("failed to parse prompt file: %w", err)
	}

	l.mu.Lock()
	l.overrides = overrides
	l.mu.Unlock()
	return nil
}

// Close stops the file watcher, if any.
func (l *Library) Close() error {
	if l.watcher == nil {
		return nil
	}
	close(l.done)
	return l.watcher.Close()
}

func (l *Library) template(name, fallback string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if t, ok := l.overrides[name]; ok && t != "" {
		return t
	}
	return fallback
}

// SystemPrompt returns the extraction system prompt.
func (l *Library) SystemPrompt() string {
	return l.template("system", defaultSystemPrompt)
}

// ContextPrompt renders the caller's selected fields and columns into the
// data section of an extraction prompt.
func (l *Library) ContextPrompt(fields, columns []map[string]interface{}) string {
	var parts []string

	if len(fields) > 0 {
		parts = append(parts, "Domain Fields:")
		for i, field := range fields {
			parts = append(parts, fmt.Sprintf("%d. %s (%s) - %s",
				i+1,
				stringValue(field, "description"),
				stringValue(field, "data_type"),
				stringValue(field, "segment_name")))
		}
	}
	if len(columns) > 0 {
		parts = append(parts, "Asset Columns:")
		for i, column := range columns {
			parts = append(parts, fmt.Sprintf("%d. %s (%s) - %s",
				i+1,
				stringValue(column, "column_name"),
				stringValue(column, "data_type"),
				stringValue(column, "description")))
		}
	}
	if len(parts) == 0 {
		return "No context provided"
	}

	parts = append(parts, "", "Create 1-3 meaningful business entities with multiple attributes from this data.")
	return strings.Join(parts, "\n")
}

// EntityCreationPrompt renders the prompt asking the LLM to turn a chat
// message into one entity JSON object.
func (l *Library) EntityCreationPrompt(message string, fieldCount, columnCount int) string {
	context := "none"
	if fieldCount > 0 || columnCount > 0 {
		context = fmt.Sprintf("%d domain fields, %d asset columns available", fieldCount, columnCount)
	}
	return strings.NewReplacer(
		"{message}", message,
		"{context}", context,
	).Replace(l.template("entity_creation", defaultEntityCreationPrompt))
}

// GeneralPrompt renders the fallback conversational prompt.
func (l *Library) GeneralPrompt(message string, fieldCount, columnCount, entityCount int) string {
	return strings.NewReplacer(
		"{message}", message,
		"{field_count}", fmt.Sprintf("%d", fieldCount),
		"{column_count}", fmt.Sprintf("%d", columnCount),
		"{entity_count}", fmt.Sprintf("%d", entityCount),
	).Replace(l.template("general", defaultGeneralPrompt))
}

func stringValue(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return "Unknown"
}
