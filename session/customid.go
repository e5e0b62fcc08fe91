package session

import (
	"fmt"
	"strings"
)

// Custom-id grammar. Discord gives us exactly one string per component to
// route on, so the component id doubles as the wire format tying an event
// back to its session:
//
//	customID := prefix ":" sessionID ":" action [ ":" arg ]
//
// prefix is the owning cog's namespace ("packs", "shop", ...), sessionID is
// the store key (or a backend resource id for session-less flows like
// challenges), action is the event verb and arg carries an optional
// payload such as a page delta or item id. The first three fields must not
// contain the separator; arg may, since it is the final field. Parsing
// happens once, at the routing boundary, and nowhere else.

const customIDSep = ":"

// CustomID is the decoded form of a component or modal custom id.
type CustomID struct {
	Prefix  string
	Session string
	Action  string
	Arg     string
}

// String encodes the id. The empty Arg form omits the trailing separator so
// encode/parse round-trip byte-identically.
func (c CustomID) String() string {
	if c.Arg == "" {
		return c.Prefix + customIDSep + c.Session + customIDSep + c.Action
	}
	return c.Prefix + customIDSep + c.Session + customIDSep + c.Action + customIDSep + c.Arg
}

// FormatCustomID builds a component custom id, validating the fixed fields.
func FormatCustomID(prefix, sessionID, action, arg string) (string, error) {
	for _, f := range []string{prefix, sessionID, action} {
		if f == "" {
			return "", fmt.Errorf("custom id field must not be empty")
		}
		if strings.Contains(f, customIDSep) {
			return "", fmt.Errorf("custom id field %q must not contain %q", f, customIDSep)
		}
	}
	return CustomID{Prefix: prefix, Session: sessionID, Action: action, Arg: arg}.String(), nil
}

// MustCustomID is FormatCustomID for ids built from engine-controlled
// fields, where a violation is a programming error.
func MustCustomID(prefix, sessionID, action, arg string) string {
	id, err := FormatCustomID(prefix, sessionID, action, arg)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseCustomID decodes a component custom id. Unparseable ids are not this
// bot's components and are reported as an error, never routed.
func ParseCustomID(s string) (CustomID, error) {
	parts := strings.SplitN(s, customIDSep, 4)
	if len(parts) < 3 {
		return CustomID{}, fmt.Errorf("custom id %q: want prefix:session:action[:arg]", s)
	}
	c := CustomID{Prefix: parts[0], Session: parts[1], Action: parts[2]}
	if len(parts) == 4 {
		c.Arg = parts[3]
	}
	if c.Prefix == "" || c.Session == "" || c.Action == "" {
		return CustomID{}, fmt.Errorf("custom id %q: empty field", s)
	}
	return c, nil
}
