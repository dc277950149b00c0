package topology

import "fmt"

// PathRecord is the persisted form of a path: its head station and its
// sections in head to tail order. Head is 0 for an empty path. A path holding
// a single station has a head and no sections.
type PathRecord struct {
	Head     int64
	Sections []Section
}

// Record returns the path in its persisted form.
func (p *Path) Record() PathRecord {
	if p.Empty() {
		return PathRecord{Sections: []Section{}}
	}
	return PathRecord{Head: p.head, Sections: p.Sections()}
}

func (r PathRecord) build(lineID int64) (*Path, error) {
	p := NewPath(lineID)
	if len(r.Sections) == 0 {
		if r.Head != 0 {
			p.adj[r.Head] = nil
			p.head, p.tail = r.Head, r.Head
		}
		return p, nil
	}
	for i, s := range r.Sections {
		if _, err := p.Attach(s); err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		// a first section stored against the path direction: the second one
		// hangs off its source
		if i == 0 && len(r.Sections) > 1 && r.Sections[1].Touches(s.SourceID) {
			p.head, p.tail = p.tail, p.head
		}
	}
	switch r.Head {
	case 0, p.head:
	case p.tail:
		p.head, p.tail = p.tail, p.head
	default:
		return nil, fmt.Errorf("%w: head %d is not an endpoint of line %d", ErrInvalidSection, r.Head, lineID)
	}
	return p, nil
}
