package busclient

// aliasSeq generates candidate 12-bit aliases from a node ID seed.
// The sequence is deterministic per node so a panel reclaims the same
// alias across restarts unless another node holds it.
type aliasSeq struct {
	state uint64
}

func newAliasSeq(nodeID uint64) *aliasSeq {
	s := &aliasSeq{state: nodeID}
	if s.state == 0 {
		s.state = 1
	}
	return s
}

// next returns the next candidate alias, never zero.
func (s *aliasSeq) next() uint16 {
	// xorshift64 keeps successive candidates well spread.
	for {
		s.state ^= s.state << 13
		s.state ^= s.state >> 7
		s.state ^= s.state << 17
		alias := uint16(s.state & 0xFFF)
		if alias != 0 {
			return alias
		}
	}
}
