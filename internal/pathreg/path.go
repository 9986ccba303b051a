// Package pathreg canonicalizes actor paths and tracks the quarantine
// state of remote authorities. It is the lowest layer in the dependency
// order: depended on by system state but depending on nothing else in
// this module.
package pathreg

import (
	"fmt"
	"strconv"
	"strings"
)

// GuardianKind identifies one of the three top-level guardians an actor
// path is rooted under.
type GuardianKind int

const (
	GuardianUser GuardianKind = iota
	GuardianSystem
	GuardianTemp
)

func (g GuardianKind) String() string {
	switch g {
	case GuardianUser:
		return "user"
	case GuardianSystem:
		return "system"
	case GuardianTemp:
		return "temp"
	default:
		return "user"
	}
}

// Authority is the host:port portion of a remote actor path.
type Authority struct {
	Scheme string
	Host   string
	Port   int // 0 means "no port"
}

func (a Authority) String() string {
	if a.Host == "" {
		return ""
	}
	scheme := a.Scheme
	if scheme == "" {
		scheme = "fraktor"
	}
	if a.Port == 0 {
		return fmt.Sprintf("%s://%s", scheme, a.Host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, a.Host, a.Port)
}

// ActorPath is an ordered sequence of segments under one guardian, with an
// optional remote authority.
type ActorPath struct {
	System    string
	Authority Authority // zero value means local
	Guardian  GuardianKind
	Segments  []string
}

// Root returns the empty path rooted at the given guardian.
func Root(system string, guardian GuardianKind) ActorPath {
	return ActorPath{System: system, Guardian: guardian}
}

// Child appends a segment, returning a new path (ActorPath is a value type).
func (p ActorPath) Child(segment string) ActorPath {
	segments := make([]string, len(p.Segments)+1)
	copy(segments, p.Segments)
	segments[len(p.Segments)] = segment
	p.Segments = segments
	return p
}

// String renders the canonical URI: fraktor://<system>@<host>:<port>/(user|system|temp)/<segment>/…
func (p ActorPath) String() string {
	var b strings.Builder
	scheme := p.Authority.Scheme
	if scheme == "" {
		scheme = "fraktor"
	}
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(p.System)
	if p.Authority.Host != "" {
		b.WriteByte('@')
		b.WriteString(p.Authority.Host)
		if p.Authority.Port != 0 {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(p.Authority.Port))
		}
	}
	b.WriteByte('/')
	b.WriteString(p.Guardian.String())
	for _, seg := range p.Segments {
		b.WriteByte('/')
		b.WriteString(seg)
	}
	return b.String()
}

// ParsePath parses the canonical fraktor://system[@host[:port]]/guardian/seg...
// syntax. Host/port and the remaining segments are optional.
func ParsePath(s string) (ActorPath, error) {
	rest := s
	scheme := "fraktor"
	if idx := strings.Index(rest, "://"); idx >= 0 {
		scheme = rest[:idx]
		rest = rest[idx+3:]
	} else {
		return ActorPath{}, fmt.Errorf("pathreg: invalid actor path %q: missing scheme", s)
	}

	var system string
	var authority Authority
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return ActorPath{}, fmt.Errorf("pathreg: invalid actor path %q: missing guardian segment", s)
	}
	head := rest[:slash]
	rest = rest[slash+1:]

	if at := strings.IndexByte(head, '@'); at >= 0 {
		system = head[:at]
		hostport := head[at+1:]
		host := hostport
		if c := strings.IndexByte(hostport, ':'); c >= 0 {
			host = hostport[:c]
			port, err := strconv.Atoi(hostport[c+1:])
			if err != nil {
				return ActorPath{}, fmt.Errorf("pathreg: invalid port in %q: %w", s, err)
			}
			authority.Port = port
		}
		authority.Host = host
		authority.Scheme = scheme
	} else {
		system = head
	}

	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		return ActorPath{}, fmt.Errorf("pathreg: invalid actor path %q: missing guardian segment", s)
	}
	var guardian GuardianKind
	switch parts[0] {
	case "user":
		guardian = GuardianUser
	case "system":
		guardian = GuardianSystem
	case "temp":
		guardian = GuardianTemp
	default:
		return ActorPath{}, fmt.Errorf("pathreg: invalid actor path %q: unknown guardian %q", s, parts[0])
	}

	segments := parts[1:]
	if len(segments) == 1 && segments[0] == "" {
		segments = nil
	}

	return ActorPath{System: system, Authority: authority, Guardian: guardian, Segments: segments}, nil
}

// IsReservedTopLevel reports whether name collides (case-insensitively)
// with one of the four reserved top-level names.
func IsReservedTopLevel(name string) bool {
	switch strings.ToLower(name) {
	case "user", "system", "temp", "deadletters":
		return true
	default:
		return false
	}
}
