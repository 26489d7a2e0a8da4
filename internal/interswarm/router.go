// ABOUTME: Router ferries messages whose recipient's swarm differs from the local one.
// ABOUTME: Owns a single keep-alive HTTP client; local recipients never leave the process.
package interswarm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389-research/mail/internal/address"
	"github.com/2389-research/mail/internal/message"
)

// remoteSwarmTimeout matches spec.md's long-poll allowance for a remote
// agent turn to complete before the caller gives up.
const remoteSwarmTimeout = 3600 * time.Second

// MAILInterswarmMessage is the wire envelope POSTed between swarms.
type MAILInterswarmMessage struct {
	MessageID   uuid.UUID              `json:"message_id"`
	SourceSwarm string                 `json:"source_swarm"`
	TargetSwarm string                 `json:"target_swarm"`
	Timestamp   time.Time              `json:"timestamp"`
	Payload     json.RawMessage        `json:"payload"`
	MsgType     string                 `json:"msg_type"`
	AuthToken   string                 `json:"auth_token,omitempty"`
	Metadata    *InterswarmMetadata    `json:"metadata,omitempty"`
}

// InterswarmMetadata carries routing breadcrumbs alongside a wrapped payload.
type InterswarmMetadata struct {
	OriginalMessageID uuid.UUID         `json:"original_message_id"`
	RoutingInfo       map[string]string `json:"routing_info,omitempty"`
	ExpectResponse    bool              `json:"expect_response"`
}

// SwarmLookup resolves swarm names to the information the router needs to
// reach them. internal/registry ships an adapter satisfying this.
type SwarmLookup interface {
	LookupEndpoint(name string) (Endpoint, bool)
	ActiveEndpoints() []Endpoint
	GetResolvedAuthToken(name string) (string, bool)
}

// Endpoint is the subset of a registry entry the router consults.
type Endpoint struct {
	Name     string
	BaseURL  string
	IsActive bool
}

// LocalHandler submits a reconstructed envelope into the local runtime,
// satisfied by (*runtime.Runtime).Submit.
type LocalHandler func(m message.MAILMessage) error

// Router implements runtime.Router by partitioning a message's recipients
// into local and per-remote-swarm groups, per spec.md §4.I.
type Router struct {
	localSwarm string
	lookup     SwarmLookup
	local      LocalHandler
	client     *http.Client
}

// New builds a Router for localSwarm, resolving remote endpoints through
// lookup and handing fully-local envelopes to local.
func New(localSwarm string, lookup SwarmLookup, local LocalHandler) *Router {
	return &Router{
		localSwarm: localSwarm,
		lookup:     lookup,
		local:      local,
	}
}

// Start opens the router's keep-alive HTTP client.
func (r *Router) Start() {
	r.client = &http.Client{
		Timeout: remoteSwarmTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Stop closes idle connections held by the router's HTTP client.
func (r *Router) Stop() {
	if r.client != nil {
		r.client.CloseIdleConnections()
	}
}

// LocalSwarm implements runtime.Router.
func (r *Router) LocalSwarm() string { return r.localSwarm }

// Route implements runtime.Router: single-recipient envelopes go whole to
// one destination; multi-recipient envelopes are partitioned into a local
// copy and one remote copy per distinct target swarm.
func (r *Router) Route(ctx context.Context, m message.MAILMessage) (message.MAILMessage, error) {
	recipients := m.Recipients()
	if len(recipients) == 1 {
		return r.routeSingle(ctx, m, recipients[0])
	}
	return r.routeMulti(ctx, m, recipients)
}

func (r *Router) routeSingle(ctx context.Context, m message.MAILMessage, recipient address.Address) (message.MAILMessage, error) {
	swarm := recipient.Swarm()
	if swarm == "" || swarm == r.localSwarm {
		if err := r.local(m); err != nil {
			return message.MAILMessage{}, err
		}
		return m, nil
	}
	return r.sendRemote(ctx, swarm, m)
}

func (r *Router) routeMulti(ctx context.Context, m message.MAILMessage, recipients []address.Address) (message.MAILMessage, error) {
	var localRecipients []address.Address
	remoteBySwarm := make(map[string][]address.Address)

	for _, rec := range recipients {
		swarm := rec.Swarm()
		if swarm == "" || swarm == r.localSwarm {
			localRecipients = append(localRecipients, rec)
			continue
		}
		remoteBySwarm[swarm] = append(remoteBySwarm[swarm], rec)
	}

	if len(localRecipients) > 0 {
		localCopy := withRecipients(m, localRecipients)
		if err := r.local(localCopy); err != nil {
			return message.MAILMessage{}, err
		}
	}

	var lastErr error
	for swarm, recs := range remoteBySwarm {
		remoteCopy := withSenderSwarm(withRecipients(m, recs), r.localSwarm)
		if _, err := r.sendRemote(ctx, swarm, remoteCopy); err != nil {
			lastErr = err
		}
	}
	return m, lastErr
}

// BroadcastToAllSwarms fans m out to every remote active endpoint, per
// spec.md §4.I.
func (r *Router) BroadcastToAllSwarms(ctx context.Context, m message.MAILMessage) error {
	var lastErr error
	for _, ep := range r.lookup.ActiveEndpoints() {
		if ep.Name == r.localSwarm || !ep.IsActive {
			continue
		}
		if _, err := r.sendRemote(ctx, ep.Name, m); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (r *Router) sendRemote(ctx context.Context, swarm string, m message.MAILMessage) (message.MAILMessage, error) {
	ep, ok := r.lookup.LookupEndpoint(swarm)
	if !ok {
		return r.routerError(m, fmt.Sprintf("Unknown Swarm: %q", swarm)), nil
	}

	payload, err := json.Marshal(m.Body)
	if err != nil {
		return message.MAILMessage{}, fmt.Errorf("interswarm: marshal payload: %w", err)
	}

	requestID, _ := m.RequestIDOf()
	wrapper := MAILInterswarmMessage{
		MessageID:   uuid.New(),
		SourceSwarm: r.localSwarm,
		TargetSwarm: swarm,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
		MsgType:     string(m.Kind),
		Metadata: &InterswarmMetadata{
			OriginalMessageID: requestID,
			ExpectResponse:    true,
		},
	}
	if token, ok := r.lookup.GetResolvedAuthToken(swarm); ok {
		wrapper.AuthToken = token
	}

	body, err := json.Marshal(wrapper)
	if err != nil {
		return message.MAILMessage{}, fmt.Errorf("interswarm: marshal wrapper: %w", err)
	}

	url := fmt.Sprintf("%s/interswarm/message", trimTrailingSlash(ep.BaseURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return message.MAILMessage{}, fmt.Errorf("interswarm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if wrapper.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+wrapper.AuthToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return r.routerError(m, fmt.Sprintf("Router Error: %v", err)), nil
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return r.routerError(m, fmt.Sprintf("Router Error: remote swarm %q returned status %d", swarm, resp.StatusCode)), nil
	}

	var result message.MAILMessage
	if err := json.Unmarshal(respBody, &result); err != nil {
		return r.routerError(m, fmt.Sprintf("Router Error: malformed response from %q", swarm)), nil
	}
	return result, nil
}

// routerError synthesizes a system Response back to m's sender, the
// "never fatal, always a MAIL message" policy from spec.md §7.
func (r *Router) routerError(m message.MAILMessage, reason string) message.MAILMessage {
	return message.NewResponse(
		m.TaskID(), uuid.New(),
		address.New(address.System, "system"),
		m.Sender(),
		reason,
		reason,
	)
}

// HandleIncoming reconstructs the inner envelope from wrapper and routes it
// to the local handler, per spec.md §4.I. Returns an error if wrapper is not
// addressed to this swarm.
func (r *Router) HandleIncoming(wrapper MAILInterswarmMessage) (message.MAILMessage, error) {
	if wrapper.TargetSwarm != r.localSwarm {
		return message.MAILMessage{}, fmt.Errorf("interswarm: wrapper targets swarm %q, not %q", wrapper.TargetSwarm, r.localSwarm)
	}

	inner, err := reconstructEnvelope(wrapper)
	if err != nil {
		return message.MAILMessage{}, err
	}
	if err := r.local(inner); err != nil {
		return message.MAILMessage{}, err
	}
	return inner, nil
}

func reconstructEnvelope(wrapper MAILInterswarmMessage) (message.MAILMessage, error) {
	var sniff struct {
		BroadcastID *uuid.UUID       `json:"broadcast_id"`
		InterruptID *uuid.UUID       `json:"interrupt_id"`
		RequestID   *uuid.UUID       `json:"request_id"`
		Recipient   *address.Address `json:"recipient"`
	}
	if err := json.Unmarshal(wrapper.Payload, &sniff); err != nil {
		return message.MAILMessage{}, fmt.Errorf("interswarm: sniff payload kind: %w", err)
	}

	kind := message.Kind(wrapper.MsgType)
	if kind == "" {
		kind = message.DetermineKind(sniff.BroadcastID != nil, sniff.InterruptID != nil, sniff.RequestID != nil, sniff.Recipient != nil)
	}

	envelopeJSON, err := json.Marshal(map[string]any{
		"kind":      kind,
		"timestamp": wrapper.Timestamp,
	})
	if err != nil {
		return message.MAILMessage{}, err
	}

	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(wrapper.Payload, &merged); err != nil {
		return message.MAILMessage{}, fmt.Errorf("interswarm: parse payload: %w", err)
	}
	var base map[string]json.RawMessage
	_ = json.Unmarshal(envelopeJSON, &base)
	for k, v := range base {
		merged[k] = v
	}

	flat, err := json.Marshal(merged)
	if err != nil {
		return message.MAILMessage{}, err
	}

	var out message.MAILMessage
	if err := json.Unmarshal(flat, &out); err != nil {
		return message.MAILMessage{}, fmt.Errorf("interswarm: reconstruct envelope: %w", err)
	}
	return out, nil
}

func withRecipients(m message.MAILMessage, recipients []address.Address) message.MAILMessage {
	switch b := m.Body.(type) {
	case message.RequestBody:
		b.Recipient = recipients[0]
		m.Body = b
	case message.ResponseBody:
		b.Recipient = recipients[0]
		m.Body = b
	case message.BroadcastBody:
		b.Recipients = recipients
		m.Body = b
	case message.InterruptBody:
		b.Recipients = recipients
		m.Body = b
	}
	return m
}

// withSenderSwarm stamps sender_swarm=local on m's body, per spec.md §4.I
// step 2. The interswarm wrapper already carries source_swarm, but the body
// field lets a recipient recover the originating swarm if the wrapper is
// ever stripped (e.g. after local re-submission).
func withSenderSwarm(m message.MAILMessage, local string) message.MAILMessage {
	switch b := m.Body.(type) {
	case message.RequestBody:
		b.SenderSwarm = local
		m.Body = b
	case message.ResponseBody:
		b.SenderSwarm = local
		m.Body = b
	case message.BroadcastBody:
		b.SenderSwarm = local
		m.Body = b
	case message.InterruptBody:
		b.SenderSwarm = local
		m.Body = b
	}
	return m
}

func trimTrailingSlash(s string) string {
	if len(s) > 0 && s[len(s)-1] == '/' {
		return s[:len(s)-1]
	}
	return s
}
