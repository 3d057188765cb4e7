package todosync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// HookInput is the JSON document the coding assistant writes to a hook's stdin.
type HookInput struct {
	SessionID        string `json:"sessionId"`
	WorkingDirectory string `json:"workingDirectory"`
	HookEventName    string `json:"hook_event_name,omitempty"`
	ToolName         string `json:"tool_name,omitempty"`
}

// ReadHookInput decodes hook input. Empty input yields a zero HookInput.
// The snake_case session_id some hook events send is accepted too.
func ReadHookInput(r io.Reader) (*HookInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read hook input: %w", err)
	}
	in := &HookInput{}
	if strings.TrimSpace(string(data)) == "" {
		return in, nil
	}
	if err := json.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("parse hook input: %w", err)
	}
	if in.SessionID == "" {
		var alt struct {
			SessionID string `json:"session_id"`
		}
		if json.Unmarshal(data, &alt) == nil {
			in.SessionID = alt.SessionID
		}
	}
	return in, nil
}

// HandleSessionStart hydrates the assistant's todo list from the store.
func (s *Syncer) HandleSessionStart(ctx context.Context, in *HookInput) (*PushResult, error) {
	if in != nil {
		s.SetSession(in.SessionID)
	}
	return s.Push(ctx)
}

// HandlePostToolUse pulls the assistant's edits, then pushes so both sides
// agree on the result, including rejected changes.
func (s *Syncer) HandlePostToolUse(ctx context.Context, in *HookInput) (*PullResult, error) {
	if in != nil {
		s.SetSession(in.SessionID)
	}
	pulled, err := s.Pull(ctx)
	if err != nil {
		return pulled, err
	}
	if _, err := s.Push(ctx); err != nil {
		return pulled, err
	}
	return pulled, nil
}
