// ABOUTME: Tests for the address parse/format grammar and "all" sentinel.
package address_test

import (
	"testing"

	"github.com/2389-research/mail/internal/address"
)

func TestParseFormat_RoundTrip(t *testing.T) {
	cases := []string{"analyst", "analyst@beta", "all", "user_alice@gamma"}
	for _, addr := range cases {
		name, swarm := address.Parse(addr)
		got := address.Format(name, swarm)
		if got != addr {
			t.Errorf("Format(Parse(%q)) = %q, want %q", addr, got, addr)
		}
	}
}

func TestParse_BareNameHasNoSwarm(t *testing.T) {
	name, swarm := address.Parse("analyst")
	if name != "analyst" || swarm != "" {
		t.Errorf("Parse(%q) = (%q, %q), want (\"analyst\", \"\")", "analyst", name, swarm)
	}
}

func TestIsRemote(t *testing.T) {
	local := address.New(address.Agent, "analyst")
	if local.IsRemote("alpha") {
		t.Error("bare name should never be remote")
	}

	same := address.New(address.Agent, "analyst@alpha")
	if same.IsRemote("alpha") {
		t.Error("address qualified with the local swarm name should not be remote")
	}

	remote := address.New(address.Agent, "analyst@beta")
	if !remote.IsRemote("alpha") {
		t.Error("address qualified with a different swarm should be remote")
	}
}

func TestIsAll(t *testing.T) {
	all := address.New(address.Agent, address.All)
	if !all.IsAll() {
		t.Error("agent:all should report IsAll")
	}

	notAll := address.New(address.User, address.All)
	if notAll.IsAll() {
		t.Error("user:all is not the broadcast sentinel, only agent:all is")
	}

	named := address.New(address.Agent, "analyst")
	if named.IsAll() {
		t.Error("a named agent address should not report IsAll")
	}
}

func TestAddressType_TextMarshalRoundTrip(t *testing.T) {
	for _, at := range []address.AddressType{address.Agent, address.User, address.System} {
		text, err := at.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", at, err)
		}
		var got address.AddressType
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if got != at {
			t.Errorf("round trip: got %v, want %v", got, at)
		}
	}
}

func TestAddressType_UnmarshalUnknownReturnsError(t *testing.T) {
	var at address.AddressType
	if err := at.UnmarshalText([]byte("bogus")); err == nil {
		t.Fatal("expected error for unknown address type, got nil")
	}
}
