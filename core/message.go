package core

import "encoding/json"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single tool request produced by the generation backend.
type ToolCall struct {
	// ID correlates the request with its result message.
	ID string `json:"id"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Input is the tool's structured input as emitted by the model.
	Input json.RawMessage `json:"input"`
}

// Message is one entry in a conversation thread. Messages are immutable once
// committed to the checkpoint; tool-role messages exist only within a turn and
// are never persisted.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolName and ToolCallID are set on tool-role messages carrying a result.
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Citations lists sources backing an assistant answer.
	Citations []Source `json:"citations,omitempty"`
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string, citations []Source) Message {
	return Message{Role: RoleAssistant, Content: content, Citations: citations}
}

// ToolResultMessage builds a tool-role message carrying one tool's output.
func ToolResultMessage(call ToolCall, output string) Message {
	return Message{
		Role:       RoleTool,
		Content:    output,
		ToolName:   call.Name,
		ToolCallID: call.ID,
	}
}

// InvocationStatus is the lifecycle state of one tool invocation.
type InvocationStatus string

const (
	InvocationStarted   InvocationStatus = "started"
	InvocationCompleted InvocationStatus = "completed"
	InvocationErrored   InvocationStatus = "errored"
)

// ToolInvocation records one tool execution within a turn. It is ephemeral:
// it feeds the event stream and is never persisted.
type ToolInvocation struct {
	Tool   string           `json:"tool"`
	Input  json.RawMessage  `json:"input"`
	Output string           `json:"output"`
	Status InvocationStatus `json:"status"`
}
