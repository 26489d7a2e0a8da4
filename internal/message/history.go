// ABOUTME: AgentHistory is the ordered, role-tagged conversation fed to an Agent each turn.
// ABOUTME: ToolCall is the Agent adapter's output shape for a single tool invocation.
package message

import "fmt"

// Role tags a HistoryEntry with who produced it.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// HistoryEntry is one turn in an AgentHistory.
type HistoryEntry struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // set on assistant entries that requested tool calls
	ToolCallID string     // set on tool entries: which call this responds to
}

// ToolCall is the Agent adapter's description of one requested tool
// invocation: `{name, args, call_id, completion}` per spec.md §3. Completion
// is opaque state the concrete Agent implementation round-trips back to
// itself (e.g. a provider SDK's native tool-call struct) and MAIL never
// inspects it.
type ToolCall struct {
	Name       string
	Args       map[string]any
	CallID     string
	Completion any
}

// CreateResponseMsg builds the tool-role history entry that answers this
// call, per spec.md §3 ("Has create_response_msg(content) -> history entry").
func (tc ToolCall) CreateResponseMsg(content string) HistoryEntry {
	return HistoryEntry{Role: RoleTool, Content: content, ToolCallID: tc.CallID}
}

// AgentHistory is the ordered sequence of role-tagged entries a runtime
// maintains per agent. Mutated only by the runtime, and only inside that
// agent's own dispatch turn (spec.md §3).
type AgentHistory struct {
	AgentID string
	Entries []HistoryEntry
}

// NewAgentHistory creates an empty history for agentID.
func NewAgentHistory(agentID string) *AgentHistory {
	return &AgentHistory{AgentID: agentID}
}

// Append adds an entry to the end of the history.
func (h *AgentHistory) Append(e HistoryEntry) {
	h.Entries = append(h.Entries, e)
}

// AppendUser appends a user-role entry, e.g. the XML rendering of an
// incoming MAILMessage (spec.md §4.C schedule(m) step 1).
func (h *AgentHistory) AppendUser(content string) {
	h.Append(HistoryEntry{Role: RoleUser, Content: content})
}

// AppendAssistant appends an assistant-role entry, optionally carrying the
// tool calls the agent requested in this turn.
func (h *AgentHistory) AppendAssistant(content string, calls []ToolCall) {
	h.Append(HistoryEntry{Role: RoleAssistant, Content: content, ToolCalls: calls})
}

// Trim keeps entries from the last user-role entry forward, then strips any
// leading tool-role entries so the next turn starts on a valid head
// (spec.md §4.C schedule(m) step 6). A history with no user entry is left
// untouched.
func (h *AgentHistory) Trim() {
	lastUser := -1
	for i, e := range h.Entries {
		if e.Role == RoleUser {
			lastUser = i
		}
	}
	if lastUser < 0 {
		return
	}
	h.Entries = h.Entries[lastUser:]

	strip := 0
	for strip < len(h.Entries) && h.Entries[strip].Role == RoleTool {
		strip++
	}
	h.Entries = h.Entries[strip:]
}

// String renders the history for debugging/log purposes.
func (h *AgentHistory) String() string {
	return fmt.Sprintf("AgentHistory{agent=%s, entries=%d}", h.AgentID, len(h.Entries))
}
