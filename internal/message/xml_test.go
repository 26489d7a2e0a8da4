// ABOUTME: Tests for the agent-facing XML rendering of incoming messages.
package message_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/2389-research/mail/internal/address"
	"github.com/2389-research/mail/internal/message"
)

func TestRenderXML_ContainsExpectedElements(t *testing.T) {
	m, err := message.NewRequest(uuid.New(), address.New(address.User, "alice"), address.New(address.Agent, "supervisor"), "hello", "please help")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	out, err := message.RenderXML(m, "supervisor")
	if err != nil {
		t.Fatalf("RenderXML: %v", err)
	}

	for _, want := range []string{"<incoming_message>", "<from type=\"user\">", "<to type=\"agent\">supervisor</to>", "<subject>hello</subject>", "<body>please help</body>"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q, got: %s", want, out)
		}
	}
}
