// ABOUTME: AddressType identifies whether an address names an agent, a user, or the system.
// ABOUTME: Address carries the parse/format grammar for "name" and "name@swarm" forms.
package address

import (
	"fmt"
	"strings"
)

// AddressType identifies the kind of participant an Address names.
type AddressType int

const (
	Agent AddressType = iota
	User
	System
)

// String implements fmt.Stringer.
func (t AddressType) String() string {
	switch t {
	case Agent:
		return "agent"
	case User:
		return "user"
	case System:
		return "system"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so AddressType round-trips
// through JSON as the lowercase strings the wire format expects.
func (t AddressType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *AddressType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "agent":
		*t = Agent
	case "user":
		*t = User
	case "system":
		*t = System
	default:
		return fmt.Errorf("unknown address type: %q", text)
	}
	return nil
}

// All is the literal agent address meaning "every local agent except the sender".
const All = "all"

// Address identifies a message participant: an agent, a user, or the system.
// Addr is either a bare name ("analyst") or a swarm-qualified name
// ("analyst@beta") when the participant lives in a remote swarm.
type Address struct {
	Type AddressType `json:"type"`
	Addr string      `json:"address"`
}

// New builds an Address from a type and raw addr string.
func New(t AddressType, addr string) Address {
	return Address{Type: t, Addr: addr}
}

// Parse splits an addr of the form "name" or "name@swarm" into its name and
// optional swarm components. A bare name returns an empty swarm.
func Parse(addr string) (name string, swarm string) {
	if idx := strings.LastIndex(addr, "@"); idx >= 0 {
		return addr[:idx], addr[idx+1:]
	}
	return addr, ""
}

// Format rejoins a name and optional swarm into the "name" or "name@swarm"
// wire form. Format(Parse(x)) == x for any legally formed x.
func Format(name string, swarm string) string {
	if swarm == "" {
		return name
	}
	return name + "@" + swarm
}

// Name returns the bare name portion of the address.
func (a Address) Name() string {
	name, _ := Parse(a.Addr)
	return name
}

// Swarm returns the swarm portion of the address, or "" if the address is local.
func (a Address) Swarm() string {
	_, swarm := Parse(a.Addr)
	return swarm
}

// IsRemote reports whether the address names a swarm other than localSwarm.
// A bare name (no swarm qualifier) is never remote.
func (a Address) IsRemote(localSwarm string) bool {
	swarm := a.Swarm()
	return swarm != "" && swarm != localSwarm
}

// IsAll reports whether this address is the broadcast-to-all-agents sentinel.
func (a Address) IsAll() bool {
	return a.Type == Agent && a.Addr == All
}

// String renders the address as its wire form, e.g. "agent:analyst@beta".
func (a Address) String() string {
	return fmt.Sprintf("%s:%s", a.Type, a.Addr)
}
