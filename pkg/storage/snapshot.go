package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format name; "yml" is accepted.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", task.Invalid("", "format", "unsupported format "+s)
	}
}

// Snapshot is the export document.
type Snapshot struct {
	Version int          `json:"version" yaml:"version"`
	Tasks   []*task.Task `json:"tasks" yaml:"tasks"`
}

// EncodeSnapshot writes tasks in the given format.
func EncodeSnapshot(w io.Writer, tasks []*task.Task, format Format) error {
	doc := Snapshot{Version: 1, Tasks: tasks}
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	}
}

// DecodeSnapshot reads a document written by EncodeSnapshot. A bare list of
// tasks is accepted as well.
func DecodeSnapshot(r io.Reader, format Format) ([]*task.Task, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var doc Snapshot
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			var list []*task.Task
			if yaml.Unmarshal(data, &list) != nil {
				return nil, task.Invalid("", "snapshot", "invalid yaml: "+err.Error())
			}
			return list, nil
		}
	default:
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "[") {
			var list []*task.Task
			if err := json.Unmarshal(data, &list); err != nil {
				return nil, task.Invalid("", "snapshot", "invalid json: "+err.Error())
			}
			return list, nil
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, task.Invalid("", "snapshot", "invalid json: "+err.Error())
		}
	}
	return doc.Tasks, nil
}
