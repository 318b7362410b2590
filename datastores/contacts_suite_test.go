package datastores

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

// storeOpener returns an empty store whose clock is now.
type storeOpener func(t *testing.T, now func() time.Time) ContactsStore

func fixedClock(t *testing.T, date string) func() time.Time {
	t.Helper()
	today, err := time.Parse(time.DateOnly, date)
	if err != nil {
		t.Fatalf("parse clock: %v", err)
	}
	return func() time.Time { return today.Add(15 * time.Hour) }
}

func newContact(i int) *Contact {
	return &Contact{
		Firstname:    fmt.Sprintf("first%d", i),
		Lastname:     "last",
		Email:        fmt.Sprintf("user%d@example.com", i),
		PhoneNumber:  fmt.Sprintf("+1555000%04d", i),
		Birthday:     "1990-01-01",
		OtherDetails: "details",
	}
}

func mustCreate(t *testing.T, s ContactsStore, c *Contact) *Contact {
	t.Helper()
	created, err := s.Create(context.Background(), c)
	if err != nil {
		t.Fatalf("create %s: %v", c.Email, err)
	}
	return created
}

func mustList(t *testing.T, s ContactsStore, page Page) []*Contact {
	t.Helper()
	contacts, err := s.List(context.Background(), page)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return contacts
}

func ids(contacts []*Contact) []ContactID {
	out := make([]ContactID, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.ID)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// testContactsStore checks the behavior shared by every [ContactsStore].
func testContactsStore(t *testing.T, open storeOpener) {
	ctx := context.Background()
	anyDay := func() time.Time { return time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC) }

	t.Run("create then get", func(t *testing.T) {
		s := open(t, anyDay)
		input := newContact(1)
		input.OwnerID = ptr[int64](7)
		created := mustCreate(t, s, input)
		if created.ID <= 0 {
			t.Fatalf("id = %d, want positive", created.ID)
		}
		got, err := s.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		want := input.Clone()
		want.ID = created.ID
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("get = %+v, want %+v", got, want)
		}
	})

	t.Run("create rejects invalid email", func(t *testing.T) {
		s := open(t, anyDay)
		c := newContact(1)
		c.Email = "not-an-email"
		_, err := s.Create(ctx, c)
		var invalid *ValidationError
		if !errors.As(err, &invalid) || invalid.Field != "email" {
			t.Fatalf("create error = %v, want email validation error", err)
		}
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("create error = %v, want %v", err, ErrInvalid)
		}
		if n := len(mustList(t, s, Page{Limit: 10})); n != 0 {
			t.Fatalf("store size = %d, want 0", n)
		}
	})

	t.Run("create rejects missing field", func(t *testing.T) {
		s := open(t, anyDay)
		c := newContact(1)
		c.Lastname = " "
		_, err := s.Create(ctx, c)
		var invalid *ValidationError
		if !errors.As(err, &invalid) || invalid.Field != "lastname" {
			t.Fatalf("create error = %v, want lastname validation error", err)
		}
	})

	t.Run("create rejects duplicate email", func(t *testing.T) {
		s := open(t, anyDay)
		mustCreate(t, s, newContact(1))
		dup := newContact(2)
		dup.Email = newContact(1).Email
		_, err := s.Create(ctx, dup)
		var conflict *ConflictError
		if !errors.As(err, &conflict) || conflict.Field != "email" {
			t.Fatalf("create error = %v, want email conflict", err)
		}
		if n := len(mustList(t, s, Page{Limit: 10})); n != 1 {
			t.Fatalf("store size = %d, want 1", n)
		}
	})

	t.Run("create rejects duplicate phone number", func(t *testing.T) {
		s := open(t, anyDay)
		mustCreate(t, s, newContact(1))
		dup := newContact(2)
		dup.PhoneNumber = newContact(1).PhoneNumber
		_, err := s.Create(ctx, dup)
		var conflict *ConflictError
		if !errors.As(err, &conflict) || conflict.Field != "phone_number" {
			t.Fatalf("create error = %v, want phone_number conflict", err)
		}
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("create error = %v, want %v", err, ErrConflict)
		}
	})

	t.Run("empty update leaves record unchanged", func(t *testing.T) {
		s := open(t, anyDay)
		created := mustCreate(t, s, newContact(1))
		updated, err := s.Update(ctx, created.ID, ContactPatch{})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if !reflect.DeepEqual(updated, created) {
			t.Fatalf("update = %+v, want %+v", updated, created)
		}
	})

	t.Run("update applies present fields only", func(t *testing.T) {
		s := open(t, anyDay)
		created := mustCreate(t, s, newContact(1))
		updated, err := s.Update(ctx, created.ID, ContactPatch{
			Lastname: ptr("smith"),
			Email:    ptr(created.Email),
			OwnerID:  ptr[int64](3),
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		want := created.Clone()
		want.Lastname = "smith"
		want.OwnerID = ptr[int64](3)
		if !reflect.DeepEqual(updated, want) {
			t.Fatalf("update = %+v, want %+v", updated, want)
		}
		got, err := s.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("get after update = %+v, want %+v", got, want)
		}
	})

	t.Run("update rejects phone number of another record", func(t *testing.T) {
		s := open(t, anyDay)
		first := mustCreate(t, s, newContact(1))
		second := mustCreate(t, s, newContact(2))
		_, err := s.Update(ctx, second.ID, ContactPatch{PhoneNumber: ptr(first.PhoneNumber)})
		var conflict *ConflictError
		if !errors.As(err, &conflict) || conflict.Field != "phone_number" {
			t.Fatalf("update error = %v, want phone_number conflict", err)
		}
		got, err := s.Get(ctx, second.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.PhoneNumber != second.PhoneNumber {
			t.Fatalf("phone_number = %q, want %q", got.PhoneNumber, second.PhoneNumber)
		}
	})

	t.Run("update rejects invalid email", func(t *testing.T) {
		s := open(t, anyDay)
		created := mustCreate(t, s, newContact(1))
		_, err := s.Update(ctx, created.ID, ContactPatch{Email: ptr("nope")})
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("update error = %v, want %v", err, ErrInvalid)
		}
	})

	t.Run("update unknown id", func(t *testing.T) {
		s := open(t, anyDay)
		_, err := s.Update(ctx, 42, ContactPatch{Firstname: ptr("x")})
		if !errors.Is(err, ErrObjectNotFound) {
			t.Fatalf("update error = %v, want %v", err, ErrObjectNotFound)
		}
	})

	t.Run("delete then get", func(t *testing.T) {
		s := open(t, anyDay)
		created := mustCreate(t, s, newContact(1))
		kept := mustCreate(t, s, newContact(2))
		removed, err := s.Delete(ctx, created.ID)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if !reflect.DeepEqual(removed, created) {
			t.Fatalf("delete = %+v, want %+v", removed, created)
		}
		if _, err := s.Get(ctx, created.ID); !errors.Is(err, ErrObjectNotFound) {
			t.Fatalf("get error = %v, want %v", err, ErrObjectNotFound)
		}
		if _, err := s.Delete(ctx, created.ID); !errors.Is(err, ErrObjectNotFound) {
			t.Fatalf("second delete error = %v, want %v", err, ErrObjectNotFound)
		}
		if _, err := s.Get(ctx, kept.ID); err != nil {
			t.Fatalf("get kept: %v", err)
		}
		// the email is free again
		if _, err := s.Create(ctx, newContact(1)); err != nil {
			t.Fatalf("recreate: %v", err)
		}
	})

	t.Run("list paginates", func(t *testing.T) {
		s := open(t, anyDay)
		var want []ContactID
		for i := range 15 {
			want = append(want, mustCreate(t, s, newContact(i)).ID)
		}
		first := mustList(t, s, Page{Skip: 0, Limit: 10})
		if got := ids(first); !reflect.DeepEqual(got, want[:10]) {
			t.Fatalf("first page = %v, want %v", got, want[:10])
		}
		second := mustList(t, s, Page{Skip: 10, Limit: 10})
		if got := ids(second); !reflect.DeepEqual(got, want[10:]) {
			t.Fatalf("second page = %v, want %v", got, want[10:])
		}
		if n := len(mustList(t, s, Page{Skip: 20, Limit: 10})); n != 0 {
			t.Fatalf("third page size = %d, want 0", n)
		}
	})

	t.Run("list rejects negative skip", func(t *testing.T) {
		s := open(t, anyDay)
		if _, err := s.List(ctx, Page{Skip: -1, Limit: 10}); !errors.Is(err, ErrInvalid) {
			t.Fatalf("list error = %v, want %v", err, ErrInvalid)
		}
	})

	t.Run("search matches any field case-insensitively", func(t *testing.T) {
		s := open(t, anyDay)
		byFirstname := newContact(1)
		byFirstname.Firstname = "Smithy"
		byLastname := newContact(2)
		byLastname.Lastname = "SMITH"
		byEmail := newContact(3)
		byEmail.Email = "anna@blacksmith.io"
		none := newContact(4)
		none.Lastname = "Smit"
		var want []ContactID
		for _, c := range []*Contact{byFirstname, byLastname, byEmail} {
			want = append(want, mustCreate(t, s, c).ID)
		}
		mustCreate(t, s, none)

		got, err := s.Search(ctx, "smith", Page{Limit: 10})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if !reflect.DeepEqual(ids(got), want) {
			t.Fatalf("search = %v, want %v", ids(got), want)
		}
		got, err = s.Search(ctx, "smith", Page{Skip: 1, Limit: 1})
		if err != nil {
			t.Fatalf("search page: %v", err)
		}
		if !reflect.DeepEqual(ids(got), want[1:2]) {
			t.Fatalf("search page = %v, want %v", ids(got), want[1:2])
		}
	})

	t.Run("search matches phone number", func(t *testing.T) {
		s := open(t, anyDay)
		c := mustCreate(t, s, newContact(1))
		mustCreate(t, s, newContact(2))
		got, err := s.Search(ctx, "0001", Page{Limit: 10})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if !reflect.DeepEqual(ids(got), []ContactID{c.ID}) {
			t.Fatalf("search = %v, want [%d]", ids(got), c.ID)
		}
	})

	t.Run("search treats wildcards literally", func(t *testing.T) {
		s := open(t, anyDay)
		c := newContact(1)
		c.Firstname = "50%_off"
		want := mustCreate(t, s, c)
		mustCreate(t, s, newContact(2))
		for _, query := range []string{"%", "_", "%_"} {
			got, err := s.Search(ctx, query, Page{Limit: 10})
			if err != nil {
				t.Fatalf("search %q: %v", query, err)
			}
			if !reflect.DeepEqual(ids(got), []ContactID{want.ID}) {
				t.Fatalf("search %q = %v, want [%d]", query, ids(got), want.ID)
			}
		}
	})

	t.Run("search folds non-ascii case", func(t *testing.T) {
		s := open(t, anyDay)
		c := newContact(1)
		c.Lastname = "Шевченко"
		want := mustCreate(t, s, c)
		mustCreate(t, s, newContact(2))
		for _, query := range []string{"шевченко", "ШЕВ", "Ченк"} {
			got, err := s.Search(ctx, query, Page{Limit: 10})
			if err != nil {
				t.Fatalf("search %q: %v", query, err)
			}
			if !reflect.DeepEqual(ids(got), []ContactID{want.ID}) {
				t.Fatalf("search %q = %v, want [%d]", query, ids(got), want.ID)
			}
		}
	})

	t.Run("upcoming birthdays", func(t *testing.T) {
		for _, tt := range []struct {
			today    string
			birthday string
			days     int
			want     bool
		}{
			{"2024-03-07", "1990-03-10", 5, true},
			{"2024-03-20", "1990-03-10", 5, false},
			{"2024-03-10", "1990-03-10", 0, true},
			{"2024-12-30", "1985-01-02", 5, true},
			{"2024-03-05", "1990-03-10", 4, false},
		} {
			t.Run(tt.today+"+"+fmt.Sprint(tt.days), func(t *testing.T) {
				s := open(t, fixedClock(t, tt.today))
				c := newContact(1)
				c.Birthday = tt.birthday
				created := mustCreate(t, s, c)
				filler := newContact(2)
				filler.Birthday = "1990-07-15"
				mustCreate(t, s, filler)
				got, err := s.UpcomingBirthdays(ctx, tt.days, Page{Limit: 10})
				if err != nil {
					t.Fatalf("upcoming birthdays: %v", err)
				}
				var want []ContactID
				if tt.want {
					want = []ContactID{created.ID}
				}
				if len(got) != len(want) || (len(want) > 0 && got[0].ID != want[0]) {
					t.Fatalf("upcoming birthdays = %v, want %v", ids(got), want)
				}
			})
		}
	})

	t.Run("upcoming birthdays rejects negative days", func(t *testing.T) {
		s := open(t, anyDay)
		if _, err := s.UpcomingBirthdays(ctx, -1, Page{Limit: 10}); !errors.Is(err, ErrInvalid) {
			t.Fatalf("upcoming birthdays error = %v, want %v", err, ErrInvalid)
		}
	})
}
