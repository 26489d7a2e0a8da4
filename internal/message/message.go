// ABOUTME: MAILMessage is the tagged-union envelope for every message the runtime moves.
// ABOUTME: Five kinds (request, response, broadcast, interrupt, broadcast_complete) share one wire shape.
package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389-research/mail/internal/address"
)

// Kind discriminates the five envelope shapes the runtime dispatches on.
// Priority is derived from Kind alone (see Priority below); ties within a
// priority class break on submission sequence, never on Kind or any other
// envelope field.
type Kind string

const (
	KindRequest           Kind = "request"
	KindResponse          Kind = "response"
	KindBroadcast         Kind = "broadcast"
	KindInterrupt         Kind = "interrupt"
	KindBroadcastComplete Kind = "broadcast_complete"
)

// Priority returns the dispatch priority for a Kind. Lower sorts first.
func Priority(k Kind) int {
	switch k {
	case KindInterrupt, KindBroadcastComplete:
		return 1
	case KindBroadcast:
		return 2
	default:
		return 3
	}
}

// Body is the payload carried by a MAILMessage. The four concrete types
// below are the only implementations; bodySeal keeps the union closed.
type Body interface {
	bodySeal()
}

// RequestBody addresses exactly one recipient and expects a Response.
type RequestBody struct {
	TaskID         uuid.UUID         `json:"task_id"`
	RequestID      uuid.UUID         `json:"request_id"`
	Sender         address.Address   `json:"sender"`
	Recipient      address.Address   `json:"recipient"`
	Subject        string            `json:"subject"`
	Text           string            `json:"body"`
	SenderSwarm    string            `json:"sender_swarm,omitempty"`
	RecipientSwarm string            `json:"recipient_swarm,omitempty"`
	RoutingInfo    map[string]string `json:"routing_info,omitempty"`
}

func (RequestBody) bodySeal() {}

// ResponseBody answers a prior RequestBody sharing the same RequestID.
type ResponseBody struct {
	TaskID         uuid.UUID         `json:"task_id"`
	RequestID      uuid.UUID         `json:"request_id"`
	Sender         address.Address   `json:"sender"`
	Recipient      address.Address   `json:"recipient"`
	Subject        string            `json:"subject"`
	Text           string            `json:"body"`
	SenderSwarm    string            `json:"sender_swarm,omitempty"`
	RecipientSwarm string            `json:"recipient_swarm,omitempty"`
	RoutingInfo    map[string]string `json:"routing_info,omitempty"`
}

func (ResponseBody) bodySeal() {}

// BroadcastBody addresses one or more recipients. The same shape is reused
// for the terminal broadcast_complete envelope (spec.md §3).
type BroadcastBody struct {
	TaskID          uuid.UUID         `json:"task_id"`
	BroadcastID     uuid.UUID         `json:"broadcast_id"`
	Sender          address.Address   `json:"sender"`
	Recipients      []address.Address `json:"recipients"`
	Subject         string            `json:"subject"`
	Text            string            `json:"body"`
	SenderSwarm     string            `json:"sender_swarm,omitempty"`
	RecipientSwarms []string          `json:"recipient_swarms,omitempty"`
}

func (BroadcastBody) bodySeal() {}

// InterruptBody addresses one or more recipients and preempts normal traffic.
type InterruptBody struct {
	TaskID          uuid.UUID         `json:"task_id"`
	InterruptID     uuid.UUID         `json:"interrupt_id"`
	Sender          address.Address   `json:"sender"`
	Recipients      []address.Address `json:"recipients"`
	Subject         string            `json:"subject"`
	Text            string            `json:"body"`
	SenderSwarm     string            `json:"sender_swarm,omitempty"`
	RecipientSwarms []string          `json:"recipient_swarms,omitempty"`
}

func (InterruptBody) bodySeal() {}

// MAILMessage is the envelope every component of the runtime exchanges.
type MAILMessage struct {
	ID        uuid.UUID
	Timestamp time.Time
	Kind      Kind
	Body      Body
}

// NewRequest builds a Request envelope. Returns an error if taskID is the
// nil UUID, since every *_id field must be a genuine unique identifier
// (spec.md §8 invariant 1).
func NewRequest(taskID uuid.UUID, sender, recipient address.Address, subject, body string) (MAILMessage, error) {
	if taskID == uuid.Nil {
		return MAILMessage{}, fmt.Errorf("message: task_id must not be nil")
	}
	return MAILMessage{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Kind:      KindRequest,
		Body: RequestBody{
			TaskID:    taskID,
			RequestID: uuid.New(),
			Sender:    sender,
			Recipient: recipient,
			Subject:   subject,
			Text:      body,
		},
	}, nil
}

// NewResponse builds a Response envelope answering requestID.
func NewResponse(taskID, requestID uuid.UUID, sender, recipient address.Address, subject, body string) MAILMessage {
	return MAILMessage{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Kind:      KindResponse,
		Body: ResponseBody{
			TaskID:    taskID,
			RequestID: requestID,
			Sender:    sender,
			Recipient: recipient,
			Subject:   subject,
			Text:      body,
		},
	}
}

// NewBroadcast builds a Broadcast envelope. Returns an error if recipients is
// empty (spec.md §8 invariant 2: Broadcast/Interrupt need at least one).
func NewBroadcast(taskID uuid.UUID, sender address.Address, recipients []address.Address, subject, body string) (MAILMessage, error) {
	if len(recipients) == 0 {
		return MAILMessage{}, fmt.Errorf("message: broadcast must have at least one recipient")
	}
	return MAILMessage{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Kind:      KindBroadcast,
		Body: BroadcastBody{
			TaskID:      taskID,
			BroadcastID: uuid.New(),
			Sender:      sender,
			Recipients:  recipients,
			Subject:     subject,
			Text:        body,
		},
	}, nil
}

// NewBroadcastComplete builds the terminal envelope that resolves a task's
// pending future. Always addressed to "all" per spec.md §4.C step 5.
func NewBroadcastComplete(taskID uuid.UUID, sender address.Address, finishMessage string) MAILMessage {
	if finishMessage == "" {
		finishMessage = "Task completed successfully"
	}
	return MAILMessage{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Kind:      KindBroadcastComplete,
		Body: BroadcastBody{
			TaskID:      taskID,
			BroadcastID: uuid.New(),
			Sender:      sender,
			Recipients:  []address.Address{address.New(address.Agent, address.All)},
			Subject:     "Task complete",
			Text:        finishMessage,
		},
	}
}

// NewInterrupt builds an Interrupt envelope.
func NewInterrupt(taskID uuid.UUID, sender address.Address, recipients []address.Address, subject, body string) (MAILMessage, error) {
	if len(recipients) == 0 {
		return MAILMessage{}, fmt.Errorf("message: interrupt must have at least one recipient")
	}
	return MAILMessage{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Kind:      KindInterrupt,
		Body: InterruptBody{
			TaskID:      taskID,
			InterruptID: uuid.New(),
			Sender:      sender,
			Recipients:  recipients,
			Subject:     subject,
			Text:        body,
		},
	}, nil
}

// TaskID returns the task identifier carried by any body shape.
func (m MAILMessage) TaskID() uuid.UUID {
	switch b := m.Body.(type) {
	case RequestBody:
		return b.TaskID
	case ResponseBody:
		return b.TaskID
	case BroadcastBody:
		return b.TaskID
	case InterruptBody:
		return b.TaskID
	default:
		return uuid.Nil
	}
}

// Sender returns the address that originated this envelope.
func (m MAILMessage) Sender() address.Address {
	switch b := m.Body.(type) {
	case RequestBody:
		return b.Sender
	case ResponseBody:
		return b.Sender
	case BroadcastBody:
		return b.Sender
	case InterruptBody:
		return b.Sender
	default:
		return address.Address{}
	}
}

// Recipients returns every addressed recipient, regardless of whether the
// body carries a single Recipient (Request/Response) or a Recipients slice
// (Broadcast/Interrupt).
func (m MAILMessage) Recipients() []address.Address {
	switch b := m.Body.(type) {
	case RequestBody:
		return []address.Address{b.Recipient}
	case ResponseBody:
		return []address.Address{b.Recipient}
	case BroadcastBody:
		return b.Recipients
	case InterruptBody:
		return b.Recipients
	default:
		return nil
	}
}

// Subject returns the subject line carried by any body shape.
func (m MAILMessage) Subject() string {
	switch b := m.Body.(type) {
	case RequestBody:
		return b.Subject
	case ResponseBody:
		return b.Subject
	case BroadcastBody:
		return b.Subject
	case InterruptBody:
		return b.Subject
	default:
		return ""
	}
}

// Text returns the free-text body carried by any body shape.
func (m MAILMessage) Text() string {
	switch b := m.Body.(type) {
	case RequestBody:
		return b.Text
	case ResponseBody:
		return b.Text
	case BroadcastBody:
		return b.Text
	case InterruptBody:
		return b.Text
	default:
		return ""
	}
}

// RequestIDOf returns the request_id carried by a Request or Response body,
// and ok=false for Broadcast/Interrupt bodies (which have no request_id).
func (m MAILMessage) RequestIDOf() (uuid.UUID, bool) {
	switch b := m.Body.(type) {
	case RequestBody:
		return b.RequestID, true
	case ResponseBody:
		return b.RequestID, true
	default:
		return uuid.Nil, false
	}
}

// wireEnvelope is the flat JSON shape used both for local serialization and
// as the content of an interswarm payload field (spec.md §6).
type wireEnvelope struct {
	ID              uuid.UUID         `json:"id,omitempty"`
	Timestamp       time.Time         `json:"timestamp,omitempty"`
	Kind            Kind              `json:"kind,omitempty"`
	TaskID          uuid.UUID         `json:"task_id"`
	RequestID       *uuid.UUID        `json:"request_id,omitempty"`
	BroadcastID     *uuid.UUID        `json:"broadcast_id,omitempty"`
	InterruptID     *uuid.UUID        `json:"interrupt_id,omitempty"`
	Sender          address.Address   `json:"sender"`
	Recipient       *address.Address  `json:"recipient,omitempty"`
	Recipients      []address.Address `json:"recipients,omitempty"`
	Subject         string            `json:"subject"`
	Text            string            `json:"body"`
	SenderSwarm     string            `json:"sender_swarm,omitempty"`
	RecipientSwarm  string            `json:"recipient_swarm,omitempty"`
	RecipientSwarms []string          `json:"recipient_swarms,omitempty"`
	RoutingInfo     map[string]string `json:"routing_info,omitempty"`
}

// MarshalJSON flattens the tagged body union into the wire envelope shape,
// the same "inject the discriminator into a flat map" approach the teacher
// uses in marshalTagged, applied here by building the flat struct directly.
func (m MAILMessage) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{ID: m.ID, Timestamp: m.Timestamp, Kind: m.Kind}

	switch b := m.Body.(type) {
	case RequestBody:
		w.TaskID = b.TaskID
		w.RequestID = &b.RequestID
		w.Sender = b.Sender
		w.Recipient = &b.Recipient
		w.Subject = b.Subject
		w.Text = b.Text
		w.SenderSwarm = b.SenderSwarm
		w.RecipientSwarm = b.RecipientSwarm
		w.RoutingInfo = b.RoutingInfo
	case ResponseBody:
		w.TaskID = b.TaskID
		w.RequestID = &b.RequestID
		w.Sender = b.Sender
		w.Recipient = &b.Recipient
		w.Subject = b.Subject
		w.Text = b.Text
		w.SenderSwarm = b.SenderSwarm
		w.RecipientSwarm = b.RecipientSwarm
		w.RoutingInfo = b.RoutingInfo
	case BroadcastBody:
		w.TaskID = b.TaskID
		w.BroadcastID = &b.BroadcastID
		w.Sender = b.Sender
		w.Recipients = b.Recipients
		w.Subject = b.Subject
		w.Text = b.Text
		w.SenderSwarm = b.SenderSwarm
		w.RecipientSwarms = b.RecipientSwarms
	case InterruptBody:
		w.TaskID = b.TaskID
		w.InterruptID = &b.InterruptID
		w.Sender = b.Sender
		w.Recipients = b.Recipients
		w.Subject = b.Subject
		w.Text = b.Text
		w.SenderSwarm = b.SenderSwarm
		w.RecipientSwarms = b.RecipientSwarms
	default:
		return nil, fmt.Errorf("message: cannot marshal nil body")
	}

	return json.Marshal(w)
}

// UnmarshalJSON reconstructs the tagged body union from the wire shape. If
// Kind is absent, it is derived the way an inter-swarm payload is sniffed
// (spec.md §4.I): broadcast_id -> broadcast, interrupt_id -> interrupt,
// request_id+recipient -> request, request_id alone -> response.
func (m *MAILMessage) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	kind := w.Kind
	if kind == "" {
		kind = DetermineKind(w.BroadcastID != nil, w.InterruptID != nil, w.RequestID != nil, w.Recipient != nil)
	}

	m.ID = w.ID
	m.Timestamp = w.Timestamp
	m.Kind = kind

	switch kind {
	case KindRequest:
		if w.RequestID == nil || w.Recipient == nil {
			return fmt.Errorf("message: request payload missing request_id or recipient")
		}
		m.Body = RequestBody{
			TaskID: w.TaskID, RequestID: *w.RequestID, Sender: w.Sender, Recipient: *w.Recipient,
			Subject: w.Subject, Text: w.Text, SenderSwarm: w.SenderSwarm, RecipientSwarm: w.RecipientSwarm,
			RoutingInfo: w.RoutingInfo,
		}
	case KindResponse:
		if w.RequestID == nil {
			return fmt.Errorf("message: response payload missing request_id")
		}
		recipient := address.Address{}
		if w.Recipient != nil {
			recipient = *w.Recipient
		}
		m.Body = ResponseBody{
			TaskID: w.TaskID, RequestID: *w.RequestID, Sender: w.Sender, Recipient: recipient,
			Subject: w.Subject, Text: w.Text, SenderSwarm: w.SenderSwarm, RecipientSwarm: w.RecipientSwarm,
			RoutingInfo: w.RoutingInfo,
		}
	case KindBroadcast, KindBroadcastComplete:
		id := uuid.UUID{}
		if w.BroadcastID != nil {
			id = *w.BroadcastID
		}
		m.Body = BroadcastBody{
			TaskID: w.TaskID, BroadcastID: id, Sender: w.Sender, Recipients: w.Recipients,
			Subject: w.Subject, Text: w.Text, SenderSwarm: w.SenderSwarm, RecipientSwarms: w.RecipientSwarms,
		}
	case KindInterrupt:
		if w.InterruptID == nil {
			return fmt.Errorf("message: interrupt payload missing interrupt_id")
		}
		m.Body = InterruptBody{
			TaskID: w.TaskID, InterruptID: *w.InterruptID, Sender: w.Sender, Recipients: w.Recipients,
			Subject: w.Subject, Text: w.Text, SenderSwarm: w.SenderSwarm, RecipientSwarms: w.RecipientSwarms,
		}
	default:
		return fmt.Errorf("message: unknown or undeterminable kind %q", kind)
	}

	return nil
}

// DetermineKind recovers a message Kind from the flattened wire fields
// alone, the way handle_incoming_interswarm_message sniffs an inbound
// payload's shape before reconstructing its inner MAILMessage.
func DetermineKind(hasBroadcastID, hasInterruptID, hasRequestID, hasRecipient bool) Kind {
	switch {
	case hasBroadcastID:
		return KindBroadcast
	case hasInterruptID:
		return KindInterrupt
	case hasRequestID && hasRecipient:
		return KindRequest
	case hasRequestID:
		return KindResponse
	default:
		return ""
	}
}
