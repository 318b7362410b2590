package datastores

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

type (
	ContactID = int64
	Contact   struct {
		ID           ContactID
		Firstname    string
		Lastname     string
		Email        string
		PhoneNumber  string
		Birthday     string // YYYY-MM-DD
		OtherDetails string
		OwnerID      *int64
	}
)

// ContactPatch holds the fields of a partial update. A nil field is left untouched.
type ContactPatch struct {
	Firstname    *string
	Lastname     *string
	Email        *string
	PhoneNumber  *string
	Birthday     *string
	OtherDetails *string
	OwnerID      *int64
}

// Page is an offset pagination window.
type Page struct {
	Skip  int
	Limit int
}

type ContactsStore interface {
	List(context.Context, Page) ([]*Contact, error)
	Get(context.Context, ContactID) (*Contact, error)
	Create(context.Context, *Contact) (*Contact, error)
	Update(context.Context, ContactID, ContactPatch) (*Contact, error)
	Delete(context.Context, ContactID) (*Contact, error)
	Search(ctx context.Context, query string, page Page) ([]*Contact, error)
	UpcomingBirthdays(ctx context.Context, days int, page Page) ([]*Contact, error)
}

var (
	ErrObjectNotFound = errors.New("store: object not found")
	ErrConflict       = errors.New("store: object conflicts with an existing one")
	ErrInvalid        = errors.New("store: invalid object")
)

// ValidationError reports a field rejected before reaching persistence.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return "store: invalid " + e.Field + ": " + e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// ConflictError reports a uniqueness violation on Field.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return "store: object with this " + e.Field + " already exists"
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Clone returns a copy that shares no memory with c.
func (c *Contact) Clone() *Contact {
	clone := *c
	if c.OwnerID != nil {
		owner := *c.OwnerID
		clone.OwnerID = &owner
	}
	return &clone
}

// Apply overwrites the fields of c that are set in p.
func (p *ContactPatch) Apply(c *Contact) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.Firstname, p.Firstname)
	set(&c.Lastname, p.Lastname)
	set(&c.Email, p.Email)
	set(&c.PhoneNumber, p.PhoneNumber)
	set(&c.Birthday, p.Birthday)
	set(&c.OtherDetails, p.OtherDetails)
	if p.OwnerID != nil {
		owner := *p.OwnerID
		c.OwnerID = &owner
	}
}

func validateContact(c *Contact) error {
	for _, f := range []struct{ name, value string }{
		{"firstname", c.Firstname},
		{"lastname", c.Lastname},
		{"email", c.Email},
		{"phone_number", c.PhoneNumber},
		{"birthday", c.Birthday},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Reason: "is required"}
		}
	}
	if err := validateEmail(c.Email); err != nil {
		return err
	}
	return validateBirthday(c.Birthday)
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Reason: "not a valid email address"}
	}
	return nil
}

func validateBirthday(birthday string) error {
	if _, err := time.Parse(time.DateOnly, birthday); err != nil {
		return &ValidationError{Field: "birthday", Reason: fmt.Sprintf("expected YYYY-MM-DD, got %q", birthday)}
	}
	return nil
}

func validatePage(page Page) error {
	if page.Skip < 0 {
		return &ValidationError{Field: "skip", Reason: "must not be negative"}
	}
	if page.Limit < 0 {
		return &ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	return nil
}

// window returns the bounds of page over a sequence of length n.
func (p Page) window(n int) (int, int) {
	return min(p.Skip, n), min(p.Skip+p.Limit, n)
}

func validatePatch(p *ContactPatch) error {
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"firstname", p.Firstname},
		{"lastname", p.Lastname},
		{"email", p.Email},
		{"phone_number", p.PhoneNumber},
		{"birthday", p.Birthday},
	} {
		if f.value != nil && strings.TrimSpace(*f.value) == "" {
			return &ValidationError{Field: f.name, Reason: "must not be empty"}
		}
	}
	if p.Email != nil {
		if err := validateEmail(*p.Email); err != nil {
			return err
		}
	}
	if p.Birthday != nil {
		return validateBirthday(*p.Birthday)
	}
	return nil
}
