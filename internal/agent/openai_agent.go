// ABOUTME: OpenAIAgent is MAIL's default runtime.Agent, backed by the Chat Completions API.
// ABOUTME: Converts AgentHistory <-> chat messages and toolcatalog.Tool <-> function-tool params.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/2389-research/mail/internal/message"
	"github.com/2389-research/mail/internal/toolcatalog"
)

// OpenAIAgent implements runtime.Agent by translating AgentHistory into a
// Chat Completions request and MAIL tool calls out of the response's tool
// calls, the same request/response conversion shape the teacher's
// OpenAICompatClient uses for its own provider-neutral Client interface.
type OpenAIAgent struct {
	client  openai.Client
	model   string
	catalog toolcatalog.Catalog
	system  string
}

// NewOpenAIAgent builds an agent backed by model, optionally against a
// custom (OpenAI-compatible) baseURL. catalog determines which tools are
// offered on every turn; system is prepended as the system message.
func NewOpenAIAgent(apiKey, model, baseURL, system string, catalog toolcatalog.Catalog) *OpenAIAgent {
	if model == "" {
		model = "gpt-4o"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAgent{
		client:  openai.NewClient(opts...),
		model:   model,
		catalog: catalog,
		system:  system,
	}
}

// Turn implements runtime.Agent: render history as chat messages, force a
// tool call per toolChoice, and translate the response back into MAIL's
// (text, []ToolCall) shape.
func (a *OpenAIAgent) Turn(ctx context.Context, history *message.AgentHistory, toolChoice string) (string, []message.ToolCall, error) {
	params := openai.ChatCompletionNewParams{
		Model:    a.model,
		Messages: a.convertHistory(history),
		Tools:    a.convertTools(),
	}
	if toolChoice == "required" {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", nil, fmt.Errorf("agent: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, nil
	}

	choice := resp.Choices[0]
	calls := make([]message.ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = map[string]any{}
		}
		calls = append(calls, message.ToolCall{
			Name:       tc.Function.Name,
			Args:       args,
			CallID:     tc.ID,
			Completion: tc,
		})
	}

	return choice.Message.Content, calls, nil
}

func (a *OpenAIAgent) convertTools() []openai.ChatCompletionToolParam {
	built := a.catalog.Build(toolcatalog.DialectCompletions)
	out := make([]openai.ChatCompletionToolParam, 0, len(built))
	for _, t := range built {
		name, _ := t.Function["name"].(string)
		description, _ := t.Function["description"].(string)
		params, _ := t.Function["parameters"].(map[string]any)
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        name,
				Description: openai.String(description),
				Parameters:  openai.FunctionParameters(params),
			},
		})
	}
	return out
}

func (a *OpenAIAgent) convertHistory(history *message.AgentHistory) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if a.system != "" {
		messages = append(messages, openai.SystemMessage(a.system))
	}

	for _, entry := range history.Entries {
		switch entry.Role {
		case message.RoleUser:
			messages = append(messages, openai.UserMessage(entry.Content))
		case message.RoleTool:
			messages = append(messages, openai.ToolMessage(entry.Content, entry.ToolCallID))
		case message.RoleAssistant:
			messages = append(messages, convertAssistantEntry(entry))
		}
	}
	return messages
}

func convertAssistantEntry(entry message.HistoryEntry) openai.ChatCompletionMessageParamUnion {
	if len(entry.ToolCalls) == 0 {
		return openai.AssistantMessage(entry.Content)
	}

	toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(entry.ToolCalls))
	for _, tc := range entry.ToolCalls {
		argsJSON, _ := json.Marshal(tc.Args)
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   tc.CallID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: string(argsJSON),
			},
		})
	}

	asst := openai.ChatCompletionAssistantMessageParam{
		Role:      "assistant",
		ToolCalls: toolCalls,
	}
	if entry.Content != "" {
		asst.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(entry.Content),
		}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
}
