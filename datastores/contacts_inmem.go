package datastores

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// ContactsInmem implements [ContactsStore].
type ContactsInmem struct {
	// Now is the clock used by UpcomingBirthdays, [time.Now] when nil.
	Now func() time.Time

	mu       sync.Mutex
	lastID   ContactID
	index    map[ContactID]int
	contacts []*Contact
}

var _ ContactsStore = (*ContactsInmem)(nil)

// NewContactsInmem returns a store seeded with cs, ids are assigned in order.
func NewContactsInmem(cs ...*Contact) *ContactsInmem {
	s := &ContactsInmem{index: make(map[ContactID]int, len(cs))}
	for _, c := range cs {
		s.insert(c.Clone())
	}
	return s
}

func (s *ContactsInmem) insert(c *Contact) {
	s.lastID++
	c.ID = s.lastID
	s.index[c.ID] = len(s.contacts)
	s.contacts = append(s.contacts, c)
}

func (s *ContactsInmem) Create(_ context.Context, c *Contact) (*Contact, error) {
	if err := validateContact(c); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(0, &c.Email, &c.PhoneNumber); err != nil {
		return nil, err
	}
	c = c.Clone()
	s.insert(c)
	return c.Clone(), nil
}

func (s *ContactsInmem) List(_ context.Context, page Page) ([]*Contact, error) {
	if err := validatePage(page); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paginate(s.contacts, page), nil
}

func (s *ContactsInmem) Get(_ context.Context, id ContactID) (*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, ok := s.index[id]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return s.contacts[index].Clone(), nil
}

func (s *ContactsInmem) Update(_ context.Context, id ContactID, patch ContactPatch) (*Contact, error) {
	if err := validatePatch(&patch); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	index, ok := s.index[id]
	if !ok {
		return nil, ErrObjectNotFound
	}
	if err := s.checkUnique(id, patch.Email, patch.PhoneNumber); err != nil {
		return nil, err
	}
	patch.Apply(s.contacts[index])
	return s.contacts[index].Clone(), nil
}

func (s *ContactsInmem) Delete(_ context.Context, id ContactID) (*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, ok := s.index[id]
	if !ok {
		return nil, ErrObjectNotFound
	}
	removed := s.contacts[index]
	delete(s.index, id)
	s.contacts = slices.Delete(s.contacts, index, index+1)
	for i := index; i < len(s.contacts); i++ {
		s.index[s.contacts[i].ID] = i
	}
	return removed, nil
}

func (s *ContactsInmem) Search(_ context.Context, query string, page Page) ([]*Contact, error) {
	if err := validatePage(page); err != nil {
		return nil, err
	}
	fold := cases.Fold()
	query = fold.String(query)
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*Contact
	for _, c := range s.contacts {
		for _, field := range []string{c.Firstname, c.Lastname, c.Email, c.PhoneNumber} {
			if strings.Contains(fold.String(field), query) {
				matches = append(matches, c)
				break
			}
		}
	}
	return s.paginate(matches, page), nil
}

func (s *ContactsInmem) UpcomingBirthdays(_ context.Context, days int, page Page) ([]*Contact, error) {
	if err := validatePage(page); err != nil {
		return nil, err
	}
	if days < 0 {
		return nil, &ValidationError{Field: "days", Reason: "must not be negative"}
	}
	today := now(s.Now)
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*Contact
	for _, c := range s.contacts {
		if birthdayWithin(c.Birthday, today, days) {
			matches = append(matches, c)
		}
	}
	return s.paginate(matches, page), nil
}

// checkUnique must be called with s.mu held. The contact self is excluded from the check.
func (s *ContactsInmem) checkUnique(self ContactID, email, phone *string) error {
	for _, c := range s.contacts {
		if c.ID == self {
			continue
		}
		if email != nil && c.Email == *email {
			return &ConflictError{Field: "email"}
		}
		if phone != nil && c.PhoneNumber == *phone {
			return &ConflictError{Field: "phone_number"}
		}
	}
	return nil
}

func (s *ContactsInmem) paginate(cs []*Contact, page Page) []*Contact {
	lo, hi := page.window(len(cs))
	out := make([]*Contact, 0, hi-lo)
	for _, c := range cs[lo:hi] {
		out = append(out, c.Clone())
	}
	return out
}

func now(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now()
	}
	return clock()
}
