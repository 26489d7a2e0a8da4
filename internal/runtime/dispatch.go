// ABOUTME: processMessage resolves recipients (local/remote/unknown) and spawns one agent turn per local target.
// ABOUTME: schedule(m) is the agent turn: render XML, call the Agent, interpret its tool calls.
package runtime

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/2389-research/mail/internal/address"
	"github.com/2389-research/mail/internal/message"
)

// MAIL tool names the runtime itself interprets; anything else reaching
// interpretToolCall is treated as a host action tool (spec.md §2, §4.C step 5).
const (
	ToolSendRequest         = "send_request"
	ToolSendResponse        = "send_response"
	ToolSendInterrupt       = "send_interrupt"
	ToolSendBroadcast       = "send_broadcast"
	ToolTaskComplete        = "task_complete"
	ToolAcknowledgeBroadcast = "acknowledge_broadcast"
	ToolIgnoreBroadcast      = "ignore_broadcast"
)

func isMAILTool(name string) bool {
	switch name {
	case ToolSendRequest, ToolSendResponse, ToolSendInterrupt, ToolSendBroadcast,
		ToolTaskComplete, ToolAcknowledgeBroadcast, ToolIgnoreBroadcast:
		return true
	default:
		return false
	}
}

// processMessage implements spec.md §4.C's dispatch algorithm: route remote
// recipients through the inter-swarm router if enabled, otherwise expand
// local recipients (including "all" and unknown-agent handling) and spawn a
// turn per resolved agent.
func (r *Runtime) processMessage(ctx context.Context, m message.MAILMessage) {
	if r.router != nil {
		local := r.router.LocalSwarm()
		anyRemote := false
		for _, rec := range m.Recipients() {
			if rec.IsRemote(local) {
				anyRemote = true
				break
			}
		}
		if anyRemote {
			resp, err := r.router.Route(ctx, m)
			if err != nil {
				log.Printf("component=runtime.core action=route_failed task_id=%s err=%v", m.TaskID(), err)
				r.dispatchLocal(ctx, m)
				return
			}
			if err := r.Submit(resp); err != nil {
				log.Printf("component=runtime.core action=resubmit_routed_failed task_id=%s err=%v", m.TaskID(), err)
			}
			return
		}
	}

	r.dispatchLocal(ctx, m)
}

// dispatchLocal runs one agent turn per resolved recipient concurrently and
// waits for all of them, so the turns live within this dispatch task: they
// keep its context, Shutdown awaits them, and a panicking turn is logged.
func (r *Runtime) dispatchLocal(ctx context.Context, m message.MAILMessage) {
	names := r.expandRecipients(m)
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					log.Printf("component=runtime.core action=schedule_panic agent=%s task_id=%s recovered=%v", name, m.TaskID(), p)
				}
			}()
			r.schedule(ctx, m, name)
		}(name)
	}
	wg.Wait()
}

// expandRecipients resolves the addressed recipients of m against the local
// agent set: "all" expands to every local agent but the sender; an unknown
// local recipient produces a synthesized system Response instead of a turn.
func (r *Runtime) expandRecipients(m message.MAILMessage) []string {
	senderName := m.Sender().Name()
	var names []string

	for _, rec := range m.Recipients() {
		if rec.IsAll() {
			for _, candidate := range r.LocalAgentNames() {
				if candidate != senderName {
					names = append(names, candidate)
				}
			}
			continue
		}

		name := rec.Name()
		if !r.hasAgent(name) {
			r.handleUnknownAgent(m, name)
			continue
		}
		names = append(names, name)
	}

	return names
}

// handleUnknownAgent synthesizes a system Response back to the sender. When
// the unresolvable recipient is actually the tenant user, the subject gives
// a pedagogical hint instead of a bare "unknown agent" error.
func (r *Runtime) handleUnknownAgent(m message.MAILMessage, recipientName string) {
	subject := fmt.Sprintf("Unknown Agent: '%s'", recipientName)
	if r.TenantUserID != "" && recipientName == r.TenantUserID {
		subject = "use task_complete to respond"
	}

	requestID, ok := m.RequestIDOf()
	if !ok {
		requestID = uuid.New()
	}

	resp := message.NewResponse(m.TaskID(), requestID, address.New(address.System, "system"), m.Sender(), subject, "")
	if err := r.Submit(resp); err != nil {
		log.Printf("component=runtime.core action=unknown_agent_response_failed task_id=%s err=%v", m.TaskID(), err)
	}
}

// schedule runs one agent turn for recipientName against m, per spec.md
// §4.C: render, call the Agent, stub MAIL tool responses, interpret every
// tool call, then trim the history back to a valid next-turn head.
func (r *Runtime) schedule(ctx context.Context, m message.MAILMessage, recipientName string) {
	history := r.historyFor(recipientName)

	rendered, err := message.RenderXML(m, recipientName)
	if err != nil {
		log.Printf("component=runtime.core action=render_failed agent=%s task_id=%s err=%v", recipientName, m.TaskID(), err)
		return
	}
	history.AppendUser(rendered)

	agent := r.agentByName(recipientName)
	if agent == nil {
		log.Printf("component=runtime.core action=agent_vanished agent=%s task_id=%s", recipientName, m.TaskID())
		return
	}

	text, calls, err := agent.Turn(ctx, history, "required")
	if err != nil {
		log.Printf("component=runtime.core action=agent_turn_failed agent=%s task_id=%s err=%v", recipientName, m.TaskID(), err)
		return
	}
	history.AppendAssistant(text, calls)

	for _, call := range calls {
		if isMAILTool(call.Name) {
			history.Append(call.CreateResponseMsg("Message sent. Response, if any, will be sent in the next user message."))
		}
	}

	for _, call := range calls {
		r.interpretToolCall(ctx, m, recipientName, call, history)
	}

	history.Trim()
}

// interpretToolCall implements spec.md §4.C step 5.
func (r *Runtime) interpretToolCall(ctx context.Context, m message.MAILMessage, agentName string, call message.ToolCall, history *message.AgentHistory) {
	self := address.New(address.Agent, agentName)

	switch call.Name {
	case ToolSendRequest:
		recipient := addressArg(call.Args, "target")
		subject, _ := call.Args["subject"].(string)
		body, _ := call.Args["body"].(string)
		out, err := message.NewRequest(m.TaskID(), self, recipient, subject, body)
		if err != nil {
			log.Printf("component=runtime.core action=send_request_invalid agent=%s err=%v", agentName, err)
			return
		}
		_ = r.Submit(out)

	case ToolSendResponse:
		recipient := addressArg(call.Args, "target")
		subject, _ := call.Args["subject"].(string)
		body, _ := call.Args["body"].(string)
		requestID := m.TaskID()
		if rid, ok := m.RequestIDOf(); ok {
			requestID = rid
		}
		out := message.NewResponse(m.TaskID(), requestID, self, recipient, subject, body)
		_ = r.Submit(out)

	case ToolSendInterrupt:
		recipients := addressArgList(call.Args, "targets")
		subject, _ := call.Args["subject"].(string)
		body, _ := call.Args["body"].(string)
		out, err := message.NewInterrupt(m.TaskID(), self, recipients, subject, body)
		if err != nil {
			log.Printf("component=runtime.core action=send_interrupt_invalid agent=%s err=%v", agentName, err)
			return
		}
		_ = r.Submit(out)

	case ToolSendBroadcast:
		recipients := addressArgList(call.Args, "targets")
		if len(recipients) == 0 {
			recipients = []address.Address{address.New(address.Agent, address.All)}
		}
		subject, _ := call.Args["subject"].(string)
		body, _ := call.Args["body"].(string)
		out, err := message.NewBroadcast(m.TaskID(), self, recipients, subject, body)
		if err != nil {
			log.Printf("component=runtime.core action=send_broadcast_invalid agent=%s err=%v", agentName, err)
			return
		}
		_ = r.Submit(out)

	case ToolTaskComplete:
		finishMessage, _ := call.Args["finish_message"].(string)
		complete := message.NewBroadcastComplete(m.TaskID(), r.entrypointAddress(self), finishMessage)
		if !r.resolvePending(m.TaskID(), complete) {
			_ = r.Submit(complete)
		} else {
			r.events.Broadcast(Event{
				Kind: EventKindTaskComplete, TaskID: m.TaskID(),
				Description: "task complete", Extra: map[string]any{"body": finishMessage},
			})
		}

	case ToolAcknowledgeBroadcast:
		if m.Kind != message.KindBroadcast {
			return
		}
		if r.store == nil {
			return
		}
		note, _ := call.Args["note"].(string)
		if err := r.store.Remember(ctx, agentName, m, note); err != nil {
			log.Printf("component=runtime.core action=acknowledge_broadcast_failed agent=%s err=%v", agentName, err)
		}

	case ToolIgnoreBroadcast:
		// no-op

	default:
		result, err := r.actions.Execute(ctx, call.Name, call.Args)
		if err != nil {
			result = fmt.Sprintf("error: %v", err)
		}
		history.Append(call.CreateResponseMsg(result))

		continuation, buildErr := message.NewBroadcast(m.TaskID(), self, []address.Address{self}, "action_complete", result)
		if buildErr != nil {
			log.Printf("component=runtime.core action=action_continuation_invalid agent=%s err=%v", agentName, buildErr)
			return
		}
		_ = r.Submit(continuation)
	}
}

// entrypointAddress returns the configured entrypoint's address, per
// spec.md §4.C step 5 ("{sender: entrypoint, recipients:["all"], ...}"): the
// broadcast_complete terminating a task is always attributed to the swarm's
// entrypoint, not to whichever agent happened to call task_complete. Falls
// back to the calling agent when no entrypoint is configured.
func (r *Runtime) entrypointAddress(fallback address.Address) address.Address {
	if r.entrypoint == "" {
		return fallback
	}
	return address.New(address.Agent, r.entrypoint)
}

func addressArg(args map[string]any, key string) address.Address {
	s, _ := args[key].(string)
	return address.New(address.Agent, s)
}

func addressArgList(args map[string]any, key string) []address.Address {
	raw, _ := args[key].([]any)
	out := make([]address.Address, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, address.New(address.Agent, s))
		}
	}
	return out
}
