package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// SchemaVersion is the current MCP tool schema version (semver).
const SchemaVersion = "1.0.0"

const (
	schemaURI = "critical-claude://schema"
	tasksURI  = "critical-claude://tasks"
)

// DeprecatedField records a field or tool that has been deprecated.
type DeprecatedField struct {
	Tool      string `json:"tool"`
	Field     string `json:"field"`
	Since     string `json:"since"`
	RemovedIn string `json:"removed_in"`
	Migration string `json:"migration"`
}

func deprecatedFields() []DeprecatedField {
	return []DeprecatedField{}
}

type schemaResponse struct {
	SchemaVersion string            `json:"schema_version"`
	ServerVersion string            `json:"server_version"`
	Statuses      []string          `json:"statuses"`
	StoryPoints   []int             `json:"story_points"`
	Deprecated    []DeprecatedField `json:"deprecated"`
}

func (s *Server) registerSchemaResource() {
	s.mcpServer.Resource(schemaURI).
		Name(schemaURI).
		Description("Tool schema version, task vocabulary and deprecation info").
		MimeType("application/json").
		Handler(func(_ context.Context, _ string, _ map[string]string) (*mcplib.ResourceContent, error) {
			return jsonResource(schemaURI, schemaInfo())
		})
}

func (s *Server) registerTasksResource() {
	s.mcpServer.Resource(tasksURI).
		Name(tasksURI).
		Description("Snapshot of every task, archived ones included").
		MimeType("application/json").
		Handler(func(ctx context.Context, _ string, _ map[string]string) (*mcplib.ResourceContent, error) {
			tasks, err := s.taskSvc.Snapshot(ctx)
			if err != nil {
				return nil, toolErr("read tasks", err)
			}
			return jsonResource(tasksURI, tasks)
		})
}

func schemaInfo() schemaResponse {
	resp := schemaResponse{
		SchemaVersion: SchemaVersion,
		ServerVersion: Version,
		StoryPoints:   append([]int(nil), task.StoryPointScale...),
		Deprecated:    deprecatedFields(),
	}
	for _, st := range task.AllStatuses() {
		resp.Statuses = append(resp.Statuses, string(st))
	}
	return resp
}

func jsonResource(uri string, v any) (*mcplib.ResourceContent, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcplib.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}
