package topology

import "fmt"

// Path is the ordered simple path of stations belonging to one line.
//
// Stations are kept in an adjacency map (station -> up to two neighbours) with
// explicit head and tail pointers. Every station has degree <= 2 and, when the
// path has sections, exactly the head and the tail have degree 1. A path may
// also hold a single station with no sections, left behind by a detach.
//
// Path is not safe for concurrent use; Manager serializes access per line.
type Path struct {
	lineID int64
	adj    map[int64][]int64
	edges  map[PairKey]Section
	head   int64
	tail   int64
}

// Detached describes the outcome of removing a station from a path.
type Detached struct {
	Stations []int64   `json:"stations"`
	Orphaned []int64   `json:"orphaned,omitempty"`
	Removed  []Section `json:"removed"`
}

func NewPath(lineID int64) *Path {
	return &Path{
		lineID: lineID,
		adj:    make(map[int64][]int64),
		edges:  make(map[PairKey]Section),
	}
}

func (p *Path) LineID() int64 { return p.lineID }

// Len returns the number of stations on the path.
func (p *Path) Len() int { return len(p.adj) }

func (p *Path) Empty() bool { return len(p.adj) == 0 }

// Contains reports whether the station is on the path.
func (p *Path) Contains(stationID int64) bool {
	_, ok := p.adj[stationID]
	return ok
}

// Head and Tail return the path endpoints; ok is false on an empty path.
func (p *Path) Head() (int64, bool) { return p.head, !p.Empty() }
func (p *Path) Tail() (int64, bool) { return p.tail, !p.Empty() }

// Clone returns a deep copy.
func (p *Path) Clone() *Path {
	c := &Path{
		lineID: p.lineID,
		adj:    make(map[int64][]int64, len(p.adj)),
		edges:  make(map[PairKey]Section, len(p.edges)),
		head:   p.head,
		tail:   p.tail,
	}
	for id, nbrs := range p.adj {
		c.adj[id] = append([]int64(nil), nbrs...)
	}
	for k, s := range p.edges {
		c.edges[k] = s
	}
	return c
}

// Attach inserts the section and returns the ordered stations head to tail.
// On error the path is left unchanged.
func (p *Path) Attach(s Section) ([]int64, error) {
	if err := p.checkOwned(s); err != nil {
		return nil, err
	}
	if _, dup := p.edges[s.Key()]; dup {
		return nil, fmt.Errorf("%w: stations %d and %d are already connected on line %d", ErrDuplicateSection, s.SourceID, s.TargetID, p.lineID)
	}
	if p.Empty() {
		p.adj[s.SourceID] = nil
		p.adj[s.TargetID] = nil
		p.link(s)
		p.head, p.tail = s.SourceID, s.TargetID
		return p.Stations(), nil
	}

	srcIn, tgtIn := p.Contains(s.SourceID), p.Contains(s.TargetID)
	switch {
	case srcIn && tgtIn:
		return nil, fmt.Errorf("%w: stations %d and %d are both on line %d already", ErrTopologyViolation, s.SourceID, s.TargetID, p.lineID)
	case !srcIn && !tgtIn:
		return nil, fmt.Errorf("%w: neither station %d nor %d is on line %d", ErrDisconnectedSection, s.SourceID, s.TargetID, p.lineID)
	}

	anchor, fresh := s.SourceID, s.TargetID
	if tgtIn {
		anchor, fresh = s.TargetID, s.SourceID
	}
	if len(p.adj[anchor]) >= 2 {
		return nil, fmt.Errorf("%w: station %d is interior on line %d", ErrTopologyViolation, anchor, p.lineID)
	}

	switch {
	case p.head == p.tail:
		// single station: extend in the section's own direction
		if anchor == s.SourceID {
			p.tail = fresh
		} else {
			p.head = fresh
		}
	case anchor == p.head:
		p.head = fresh
	default:
		p.tail = fresh
	}
	p.adj[fresh] = nil
	p.link(s)
	return p.Stations(), nil
}

// Detach removes the station and its incident sections. When the station is
// interior the fragment holding the head stays; the rest is reported as
// orphaned.
func (p *Path) Detach(stationID int64) (Detached, error) {
	nbrs, ok := p.adj[stationID]
	if !ok {
		return Detached{}, fmt.Errorf("%w: station %d on line %d", ErrStationNotInPath, stationID, p.lineID)
	}

	switch len(nbrs) {
	case 0:
		delete(p.adj, stationID)
		p.head, p.tail = 0, 0
		return Detached{Stations: p.Stations()}, nil
	case 1:
		n := nbrs[0]
		removed := p.unlink(stationID, n)
		delete(p.adj, stationID)
		if p.head == stationID {
			p.head = n
		} else {
			p.tail = n
		}
		return Detached{Stations: p.Stations(), Removed: []Section{removed}}, nil
	}

	order := p.Stations()
	idx := indexOf(order, stationID)
	kept, orphaned := order[:idx], append([]int64(nil), order[idx+1:]...)

	var removed []Section
	for i := idx - 1; i < len(order)-1; i++ {
		removed = append(removed, p.edges[pairOf(order[i], order[i+1])])
	}
	for _, s := range removed {
		delete(p.edges, s.Key())
	}
	delete(p.adj, stationID)
	for _, id := range orphaned {
		delete(p.adj, id)
	}
	p.tail = kept[len(kept)-1]
	p.adj[p.tail] = without(p.adj[p.tail], stationID)

	return Detached{
		Stations: append([]int64(nil), kept...),
		Orphaned: orphaned,
		Removed:  removed,
	}, nil
}

// Split replaces the section between two adjacent stations with two sections
// through a new station. first and second must share exactly that new station.
func (p *Path) Split(first, second Section) ([]int64, error) {
	for _, s := range []Section{first, second} {
		if err := p.checkOwned(s); err != nil {
			return nil, err
		}
	}
	via, ok := shared(first, second)
	if !ok {
		return nil, fmt.Errorf("%w: split sections must share exactly one station", ErrInvalidSection)
	}
	if p.Contains(via) {
		return nil, fmt.Errorf("%w: station %d is already on line %d", ErrTopologyViolation, via, p.lineID)
	}
	from, to := first.Other(via), second.Other(via)
	if !p.Contains(from) || !p.Contains(to) {
		return nil, fmt.Errorf("%w: stations %d and %d must both be on line %d", ErrDisconnectedSection, from, to, p.lineID)
	}
	if _, adjacent := p.edges[pairOf(from, to)]; !adjacent {
		return nil, fmt.Errorf("%w: stations %d and %d are not adjacent on line %d", ErrTopologyViolation, from, to, p.lineID)
	}

	p.unlink(from, to)
	p.adj[via] = nil
	p.link(first)
	p.link(second)
	return p.Stations(), nil
}

// Bridge removes an interior station and reconnects its two neighbours with
// the replacement section.
func (p *Path) Bridge(stationID int64, replacement Section) ([]int64, Detached, error) {
	if err := p.checkOwned(replacement); err != nil {
		return nil, Detached{}, err
	}
	nbrs, ok := p.adj[stationID]
	if !ok {
		return nil, Detached{}, fmt.Errorf("%w: station %d on line %d", ErrStationNotInPath, stationID, p.lineID)
	}
	if len(nbrs) != 2 {
		return nil, Detached{}, fmt.Errorf("%w: station %d is not interior on line %d", ErrTopologyViolation, stationID, p.lineID)
	}
	if replacement.Key() != pairOf(nbrs[0], nbrs[1]) {
		return nil, Detached{}, fmt.Errorf("%w: replacement must connect stations %d and %d", ErrInvalidSection, nbrs[0], nbrs[1])
	}

	left, right := nbrs[0], nbrs[1]
	removed := []Section{p.unlink(stationID, left), p.unlink(stationID, right)}
	delete(p.adj, stationID)
	p.link(replacement)
	stations := p.Stations()
	return stations, Detached{Stations: stations, Removed: removed}, nil
}

// Stations walks the path from head to tail.
func (p *Path) Stations() []int64 {
	out := make([]int64, 0, len(p.adj))
	if p.Empty() {
		return out
	}
	prev, cur := p.head, p.head
	for len(out) < len(p.adj) {
		out = append(out, cur)
		next, ok := p.step(prev, cur)
		if !ok {
			break
		}
		prev, cur = cur, next
	}
	return out
}

// Sections returns the sections in head to tail order.
func (p *Path) Sections() []Section {
	order := p.Stations()
	if len(order) < 2 {
		return []Section{}
	}
	out := make([]Section, 0, len(order)-1)
	for i := 0; i+1 < len(order); i++ {
		out = append(out, p.edges[pairOf(order[i], order[i+1])])
	}
	return out
}

func (p *Path) TotalDistance() float64 {
	var sum float64
	for _, s := range p.Sections() {
		sum += s.Distance
	}
	return sum
}

func (p *Path) TotalElapsedTime() float64 {
	var sum float64
	for _, s := range p.Sections() {
		sum += s.ElapsedTime
	}
	return sum
}

func (p *Path) checkOwned(s Section) error {
	if s.LineID != p.lineID {
		return fmt.Errorf("%w: section belongs to line %d, not %d", ErrInvalidSection, s.LineID, p.lineID)
	}
	return nil
}

// step returns the neighbour of cur that is not prev. On the head prev == cur.
func (p *Path) step(prev, cur int64) (int64, bool) {
	for _, n := range p.adj[cur] {
		if n != prev || prev == cur {
			return n, true
		}
	}
	return 0, false
}

func (p *Path) link(s Section) {
	p.adj[s.SourceID] = append(p.adj[s.SourceID], s.TargetID)
	p.adj[s.TargetID] = append(p.adj[s.TargetID], s.SourceID)
	p.edges[s.Key()] = s
}

func (p *Path) unlink(a, b int64) Section {
	k := pairOf(a, b)
	s := p.edges[k]
	delete(p.edges, k)
	p.adj[a] = without(p.adj[a], b)
	p.adj[b] = without(p.adj[b], a)
	return s
}

func without(ids []int64, id int64) []int64 {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func shared(a, b Section) (int64, bool) {
	switch {
	case a.SameEdge(b):
		return 0, false
	case b.Touches(a.SourceID):
		return a.SourceID, true
	case b.Touches(a.TargetID):
		return a.TargetID, true
	}
	return 0, false
}
