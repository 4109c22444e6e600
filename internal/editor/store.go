package editor

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"qrstudio/internal/domain"
)

// Store is the flat keyed collection of elements for one editing session.
// It is not safe for concurrent use; Session serializes access.
type Store struct {
	byID  map[string]domain.Element
	order []string // insertion order, the tie-break for equal Z
	newID func() string

	onDelete func(id string)
}

// NewStore creates an empty element store.
func NewStore() *Store {
	return &Store{
		byID:  make(map[string]domain.Element),
		newID: uuid.NewString,
	}
}

// OnDelete installs a hook called after an element is removed.
func (s *Store) OnDelete(fn func(id string)) {
	s.onDelete = fn
}

// Add stores el under a fresh id with a Z above every existing element.
// Any id already set on el is ignored.
func (s *Store) Add(el domain.Element) (string, error) {
	if err := el.Validate(); err != nil {
		return "", err
	}
	el.ID = s.newID()
	el.Z = 0
	if len(s.order) > 0 {
		el.Z = s.maxZ() + 1
	}
	s.byID[el.ID] = el
	s.order = append(s.order, el.ID)
	return el.ID, nil
}

// Update merges patch into the element and marks it user-edited.
func (s *Store) Update(id string, patch domain.ElementPatch) error {
	el, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("update element %s: %w", id, domain.ErrNotFound)
	}
	if err := patch.Apply(&el); err != nil {
		return fmt.Errorf("update element %s: %w", id, err)
	}
	el.Edited = true
	s.byID[id] = el
	return nil
}

// Delete removes the element and fires the delete hook.
func (s *Store) Delete(id string) error {
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("delete element %s: %w", id, domain.ErrNotFound)
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.onDelete != nil {
		s.onDelete(id)
	}
	return nil
}

// Get returns a copy of the element.
func (s *Store) Get(id string) (domain.Element, bool) {
	el, ok := s.byID[id]
	return el.Clone(), ok
}

func (s *Store) Len() int { return len(s.order) }

// All returns every element in insertion order.
func (s *Store) All() []domain.Element {
	out := make([]domain.Element, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// ElementsForPage returns the page's elements in paint order: ascending Z,
// equal Z kept in insertion order.
func (s *Store) ElementsForPage(page int) []domain.Element {
	var out []domain.Element
	for _, id := range s.order {
		if el := s.byID[id]; el.Page == page {
			out = append(out, el.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Z < out[j].Z })
	return out
}

// Replace swaps the whole collection, keeping the given order and ids.
// Used to restore history snapshots and saved templates.
func (s *Store) Replace(elements []domain.Element) {
	s.byID = make(map[string]domain.Element, len(elements))
	s.order = s.order[:0]
	for _, el := range elements {
		if el.ID == "" {
			el.ID = s.newID()
		}
		if _, dup := s.byID[el.ID]; dup {
			continue
		}
		s.byID[el.ID] = el.Clone()
		s.order = append(s.order, el.ID)
	}
}

// BringToFront raises the element above everything else.
func (s *Store) BringToFront(id string) error {
	el, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("bring to front %s: %w", id, domain.ErrNotFound)
	}
	el.Z = s.maxZ() + 1
	el.Edited = true
	s.byID[id] = el
	return nil
}

// SendToBack lowers the element below everything else.
func (s *Store) SendToBack(id string) error {
	el, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("send to back %s: %w", id, domain.ErrNotFound)
	}
	el.Z = s.minZ() - 1
	el.Edited = true
	s.byID[id] = el
	return nil
}

// Duplicate copies an element, offset by (dx, dy), on top of the stack.
func (s *Store) Duplicate(id string, dx, dy float64) (string, error) {
	el, ok := s.byID[id]
	if !ok {
		return "", fmt.Errorf("duplicate %s: %w", id, domain.ErrNotFound)
	}
	el.Rect.X += dx
	el.Rect.Y += dy
	el.Locked = false
	return s.Add(el)
}

func (s *Store) maxZ() int {
	first := true
	max := 0
	for _, el := range s.byID {
		if first || el.Z > max {
			max = el.Z
			first = false
		}
	}
	return max
}

func (s *Store) minZ() int {
	first := true
	min := 0
	for _, el := range s.byID {
		if first || el.Z < min {
			min = el.Z
			first = false
		}
	}
	return min
}
