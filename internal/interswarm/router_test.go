// ABOUTME: Behavioral tests for single/multi-recipient routing and incoming-wrapper reconstruction.
package interswarm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/2389-research/mail/internal/address"
	"github.com/2389-research/mail/internal/interswarm"
	"github.com/2389-research/mail/internal/message"
)

type fakeLookup struct {
	endpoints map[string]interswarm.Endpoint
	tokens    map[string]string
}

func (f *fakeLookup) LookupEndpoint(name string) (interswarm.Endpoint, bool) {
	ep, ok := f.endpoints[name]
	return ep, ok
}

func (f *fakeLookup) ActiveEndpoints() []interswarm.Endpoint {
	out := make([]interswarm.Endpoint, 0, len(f.endpoints))
	for _, ep := range f.endpoints {
		out = append(out, ep)
	}
	return out
}

func (f *fakeLookup) GetResolvedAuthToken(name string) (string, bool) {
	tok, ok := f.tokens[name]
	return tok, ok
}

func TestRoute_LocalRecipientNeverLeavesTheProcess(t *testing.T) {
	var delivered message.MAILMessage
	local := func(m message.MAILMessage) error {
		delivered = m
		return nil
	}
	r := interswarm.New("alpha", &fakeLookup{endpoints: map[string]interswarm.Endpoint{}}, local)

	req, err := message.NewRequest(uuid.New(), address.New(address.User, "alice"), address.New(address.Agent, "analyst"), "hi", "help")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	if _, err := r.Route(context.Background(), req); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if delivered.Subject() != "hi" {
		t.Errorf("expected the request to be delivered locally, got %+v", delivered)
	}
}

func TestRoute_RemoteRecipientPOSTsToInterswarmMessage(t *testing.T) {
	var gotPath string
	var gotWrapper interswarm.MAILInterswarmMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		_ = json.NewDecoder(req.Body).Decode(&gotWrapper)

		resp := message.NewResponse(gotWrapper.MessageID, uuid.New(), address.New(address.Agent, "analyst@beta"), address.New(address.User, "alice"), "re: hi", "handled")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	lookup := &fakeLookup{
		endpoints: map[string]interswarm.Endpoint{"beta": {Name: "beta", BaseURL: srv.URL, IsActive: true}},
		tokens:    map[string]string{"beta": "secret-token"},
	}
	r := interswarm.New("alpha", lookup, func(message.MAILMessage) error { return nil })
	r.Start()
	defer r.Stop()

	req, _ := message.NewRequest(uuid.New(), address.New(address.User, "alice"), address.New(address.Agent, "analyst@beta"), "hi", "help")

	result, err := r.Route(context.Background(), req)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if gotPath != "/interswarm/message" {
		t.Errorf("path: got %q, want /interswarm/message", gotPath)
	}
	if gotWrapper.SourceSwarm != "alpha" || gotWrapper.TargetSwarm != "beta" {
		t.Errorf("wrapper swarms: got source=%q target=%q", gotWrapper.SourceSwarm, gotWrapper.TargetSwarm)
	}
	if result.Text() != "handled" {
		t.Errorf("Text: got %q, want %q", result.Text(), "handled")
	}
}

func TestRoute_MultiRecipientRemoteCopyCarriesSenderSwarm(t *testing.T) {
	var gotWrapper interswarm.MAILInterswarmMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewDecoder(req.Body).Decode(&gotWrapper)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(message.NewResponse(gotWrapper.MessageID, uuid.New(), address.New(address.Agent, "analyst@beta"), address.New(address.User, "alice"), "re: fyi", "ack"))
	}))
	defer srv.Close()

	lookup := &fakeLookup{
		endpoints: map[string]interswarm.Endpoint{"beta": {Name: "beta", BaseURL: srv.URL, IsActive: true}},
	}
	var delivered message.MAILMessage
	r := interswarm.New("alpha", lookup, func(m message.MAILMessage) error { delivered = m; return nil })
	r.Start()
	defer r.Stop()

	broadcast, err := message.NewBroadcast(uuid.New(), address.New(address.Agent, "supervisor"),
		[]address.Address{address.New(address.Agent, "analyst"), address.New(address.Agent, "analyst@beta")}, "fyi", "update")
	if err != nil {
		t.Fatalf("NewBroadcast: %v", err)
	}

	if _, err := r.Route(context.Background(), broadcast); err != nil {
		t.Fatalf("Route: %v", err)
	}

	if delivered.Subject() != "fyi" {
		t.Errorf("expected the local copy to be delivered, got %+v", delivered)
	}

	var remotePayload struct {
		SenderSwarm string `json:"sender_swarm"`
	}
	if err := json.Unmarshal(gotWrapper.Payload, &remotePayload); err != nil {
		t.Fatalf("unmarshal remote payload: %v", err)
	}
	if remotePayload.SenderSwarm != "alpha" {
		t.Errorf("sender_swarm on remote copy: got %q, want %q", remotePayload.SenderSwarm, "alpha")
	}
}

func TestRoute_NonOKRemoteResponseSynthesizesRouterError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	lookup := &fakeLookup{endpoints: map[string]interswarm.Endpoint{"beta": {Name: "beta", BaseURL: srv.URL, IsActive: true}}}
	r := interswarm.New("alpha", lookup, func(message.MAILMessage) error { return nil })
	r.Start()
	defer r.Stop()

	req, _ := message.NewRequest(uuid.New(), address.New(address.User, "alice"), address.New(address.Agent, "analyst@beta"), "hi", "help")

	result, err := r.Route(context.Background(), req)
	if err != nil {
		t.Fatalf("Route should not surface transport errors: %v", err)
	}
	if result.Sender().Type != address.System {
		t.Errorf("expected a synthesized system response, got sender %+v", result.Sender())
	}
}

func TestHandleIncoming_RejectsWrongTargetSwarm(t *testing.T) {
	r := interswarm.New("alpha", &fakeLookup{}, func(message.MAILMessage) error { return nil })

	_, err := r.HandleIncoming(interswarm.MAILInterswarmMessage{TargetSwarm: "gamma"})
	if err == nil {
		t.Fatal("expected an error for a wrapper not addressed to this swarm")
	}
}

func TestHandleIncoming_ReconstructsRequestAndDeliversLocally(t *testing.T) {
	var delivered message.MAILMessage
	local := func(m message.MAILMessage) error {
		delivered = m
		return nil
	}
	r := interswarm.New("beta", &fakeLookup{}, local)

	taskID := uuid.New()
	inner, _ := message.NewRequest(taskID, address.New(address.User, "alice@alpha"), address.New(address.Agent, "analyst"), "hi", "help")
	payload, _ := json.Marshal(inner.Body)

	wrapper := interswarm.MAILInterswarmMessage{
		MessageID:   uuid.New(),
		SourceSwarm: "alpha",
		TargetSwarm: "beta",
		Payload:     payload,
		MsgType:     "request",
	}

	reconstructed, err := r.HandleIncoming(wrapper)
	if err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if reconstructed.Kind != message.KindRequest {
		t.Errorf("Kind: got %q, want request", reconstructed.Kind)
	}
	if reconstructed.Subject() != "hi" {
		t.Errorf("Subject: got %q, want %q", reconstructed.Subject(), "hi")
	}
	if delivered.TaskID() != taskID {
		t.Errorf("expected the reconstructed envelope to be delivered locally with task_id %v", taskID)
	}
}
