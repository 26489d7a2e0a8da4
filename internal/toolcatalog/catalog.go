// ABOUTME: Static generator for MAIL's tool schemas, in both chat-completions and responses dialects.
// ABOUTME: Supervisor-privileged agents additionally get interrupt, broadcast, and discovery tools.
package toolcatalog

// Dialect selects the shape of the generated tool descriptors: OpenAI's
// chat-completions "functions" wrapper, or the flatter "responses" shape.
type Dialect string

const (
	DialectCompletions Dialect = "completions"
	DialectResponses    Dialect = "responses"
)

// Tool is a single function-call descriptor, shaped per Dialect by Catalog.Build.
type Tool struct {
	Type     string         `json:"type"`
	Function map[string]any `json:"function,omitempty"`
	// Responses-dialect fields are flattened onto the tool itself rather
	// than nested under "function".
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Catalog configures which tools Build produces for a given agent.
type Catalog struct {
	// Interswarm enables free-form "name@swarm" targets instead of an
	// enumerated local-agent list for the messaging tools' target field.
	Interswarm bool
	// LocalAgents is the enumerated target set used when Interswarm is
	// false; ignored otherwise.
	LocalAgents []string
	// Supervisor grants send_interrupt, send_broadcast, task_complete, and
	// discover_swarms (when Interswarm is set) in addition to the base set.
	Supervisor bool
}

func targetSchema(c Catalog, description string) map[string]any {
	if c.Interswarm {
		return map[string]any{
			"type":        "string",
			"description": description + " Accepts \"name\" for a local agent or \"name@swarm\" to address a remote one.",
		}
	}
	return map[string]any{
		"type":        "string",
		"description": description,
		"enum":        c.LocalAgents,
	}
}

func targetsSchema(c Catalog, description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items":       targetSchema(c, "A recipient."),
	}
}

type toolSpec struct {
	name        string
	description string
	params      map[string]any
}

// Build returns every tool this catalog grants, rendered in dialect.
func (c Catalog) Build(dialect Dialect) []Tool {
	specs := c.specs()
	tools := make([]Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, render(dialect, s))
	}
	return tools
}

func (c Catalog) specs() []toolSpec {
	specs := []toolSpec{
		{
			name:        "send_request",
			description: "Send a request to another agent and expect a response.",
			params: object(map[string]any{
				"target":  targetSchema(c, "The agent to request help from."),
				"subject": stringProp("A short subject line."),
				"body":    stringProp("The request body."),
			}, "target", "subject", "body"),
		},
		{
			name:        "send_response",
			description: "Answer a prior request.",
			params: object(map[string]any{
				"target":  targetSchema(c, "The agent that sent the original request."),
				"subject": stringProp("A short subject line."),
				"body":    stringProp("The response body."),
			}, "target", "subject", "body"),
		},
		{
			name:        "acknowledge_broadcast",
			description: "Acknowledge a broadcast you received, optionally recording a note to memory. No reply is sent.",
			params: object(map[string]any{
				"note": stringProp("An optional note to remember alongside the broadcast."),
			}),
		},
		{
			name:        "ignore_broadcast",
			description: "Take no action on a broadcast you received.",
			params:      object(map[string]any{}),
		},
	}

	if c.Supervisor {
		specs = append(specs,
			toolSpec{
				name:        "send_interrupt",
				description: "Preempt one or more agents with an urgent message, ahead of normal traffic.",
				params: object(map[string]any{
					"targets": targetsSchema(c, "Agents to interrupt."),
					"subject": stringProp("A short subject line."),
					"body":    stringProp("The interrupt body."),
				}, "targets", "subject", "body"),
			},
			toolSpec{
				name:        "send_broadcast",
				description: "Send a message to multiple agents at once. Use target \"all\" to reach every other local agent.",
				params: object(map[string]any{
					"targets": targetsSchema(c, "Agents to broadcast to."),
					"subject": stringProp("A short subject line."),
					"body":    stringProp("The broadcast body."),
				}, "targets", "subject", "body"),
			},
			toolSpec{
				name:        "task_complete",
				description: "Mark the current task complete and deliver the final answer to the caller.",
				params: object(map[string]any{
					"finish_message": stringProp("The final answer to return to the caller."),
				}, "finish_message"),
			},
		)

		if c.Interswarm {
			specs = append(specs,
				toolSpec{
					name:        "send_interswarm_broadcast",
					description: "Broadcast a message to every agent in every active remote swarm.",
					params: object(map[string]any{
						"subject": stringProp("A short subject line."),
						"body":    stringProp("The broadcast body."),
					}, "subject", "body"),
				},
				toolSpec{
					name:        "discover_swarms",
					description: "Query one or more URLs for their swarm registries and register any new remote swarms found.",
					params: object(map[string]any{
						"urls": map[string]any{
							"type":        "array",
							"description": "URLs to query for swarm listings.",
							"items":       map[string]any{"type": "string"},
						},
					}, "urls"),
				},
			)
		}
	}

	return specs
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func render(dialect Dialect, s toolSpec) Tool {
	if dialect == DialectResponses {
		return Tool{
			Type:        "function",
			Name:        s.name,
			Description: s.description,
			Parameters:  s.params,
		}
	}
	return Tool{
		Type: "function",
		Function: map[string]any{
			"name":        s.name,
			"description": s.description,
			"parameters":  s.params,
		},
	}
}
