package agent

import "strings"

// Scratchpad is the append-only context one stage invocation feeds back to
// its model. It is never shared between stages.
type Scratchpad struct {
	parts []string
}

// Append adds a fragment. Blank fragments are dropped.
func (s *Scratchpad) Append(fragment string) {
	if strings.TrimSpace(fragment) == "" {
		return
	}
	s.parts = append(s.parts, strings.TrimRight(fragment, "\n"))
}

// Len is the number of fragments.
func (s *Scratchpad) Len() int {
	return len(s.parts)
}

// Fragments returns a copy of the fragments in order.
func (s *Scratchpad) Fragments() []string {
	return append([]string(nil), s.parts...)
}

func (s *Scratchpad) String() string {
	return strings.Join(s.parts, "\n")
}
