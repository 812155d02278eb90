package hostmanager

import "container/list"

// seqSet is a bounded, FIFO-evicting set of sequence ids, used to make scale
// intent processing idempotent against redelivery.
type seqSet struct {
	capacity int
	order    *list.List
	index    map[int64]*list.Element
}

func newSeqSet(capacity int) *seqSet {
	return &seqSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[int64]*list.Element),
	}
}

// Add reports whether seq was already present. If the set is at capacity,
// the oldest seq is evicted to make room.
func (s *seqSet) Add(seq int64) (alreadySeen bool) {
	if _, ok := s.index[seq]; ok {
		return true
	}
	if s.order.Len() >= s.capacity {
		oldest := s.order.Front()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.index, oldest.Value.(int64))
		}
	}
	el := s.order.PushBack(seq)
	s.index[seq] = el
	return false
}
