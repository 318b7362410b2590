package datastores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	_ "github.com/lib/pq"   // registers the postgres driver
	_ "modernc.org/sqlite" // registers the sqlite driver
)

// ContactsSQL implements [ContactsStore] over one table of a SQL database.
// Email and phone number uniqueness is enforced by the table constraints.
type ContactsSQL struct {
	// Now is the clock used by UpcomingBirthdays, [time.Now] when nil.
	Now func() time.Time

	db      *sql.DB
	dialect dialect
	table   string
}

var _ ContactsStore = (*ContactsSQL)(nil)

// Tables created by the embedded migrations.
var tables = []string{"contacts", "users"}

const contactColumns = `id, firstname, lastname, email, phone_number, birthday, other_details, owner_id`

// OpenContactsSQLite opens the SQLite database at path and migrates it.
func OpenContactsSQLite(ctx context.Context, path, table string) (*ContactsSQL, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: path is required")
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	return openContactsSQL(ctx, sqliteDialect, dsn, table)
}

// OpenContactsPostgres connects to the Postgres database at dsn and migrates it.
func OpenContactsPostgres(ctx context.Context, dsn, table string) (*ContactsSQL, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	return openContactsSQL(ctx, postgresDialect, dsn, table)
}

func openContactsSQL(ctx context.Context, d dialect, dsn, table string) (*ContactsSQL, error) {
	if !slices.Contains(tables, table) {
		return nil, fmt.Errorf("%s: unknown table %q", d.name, table)
	}
	if d.name == sqliteDialect.name {
		if err := registerCasefold(); err != nil {
			return nil, fmt.Errorf("register sqlite functions: %w", err)
		}
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", d.name, err)
	}
	if d.name == sqliteDialect.name {
		// one writer at a time, sqlite would answer SQLITE_BUSY otherwise
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", d.name, err)
	}
	if err := applyMigrations(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &ContactsSQL{db: db, dialect: d, table: table}, nil
}

// Close closes the database handle.
func (s *ContactsSQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *ContactsSQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ContactsSQL) query(q string) string {
	return s.dialect.rebind(strings.ReplaceAll(q, "{table}", s.table))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*Contact, error) {
	var (
		c     Contact
		owner sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.Firstname, &c.Lastname, &c.Email, &c.PhoneNumber, &c.Birthday, &c.OtherDetails, &owner)
	if err != nil {
		return nil, err
	}
	if owner.Valid {
		c.OwnerID = &owner.Int64
	}
	return &c, nil
}

func (s *ContactsSQL) scanContacts(rows *sql.Rows) ([]*Contact, error) {
	defer rows.Close()
	contacts := []*Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.table, err)
	}
	return contacts, nil
}

// conflict translates a unique constraint violation into a [ConflictError].
func (s *ContactsSQL) conflict(err error) error {
	column, ok := s.dialect.uniqueViolation(err)
	if !ok {
		return err
	}
	if column == "" {
		column = "email or phone_number"
	}
	return &ConflictError{Field: column}
}

func ownerArg(owner *int64) any {
	if owner == nil {
		return nil
	}
	return *owner
}

func (s *ContactsSQL) Create(ctx context.Context, c *Contact) (*Contact, error) {
	if err := validateContact(c); err != nil {
		return nil, err
	}
	created := c.Clone()
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, s.query(`INSERT INTO {table}
    (firstname, lastname, email, phone_number, birthday, other_details, owner_id)
    VALUES (?, ?, ?, ?, ?, ?, ?)
    RETURNING id`),
			c.Firstname, c.Lastname, c.Email, c.PhoneNumber, c.Birthday, c.OtherDetails, ownerArg(c.OwnerID),
		).Scan(&created.ID)
	})
	if err != nil {
		if err := s.conflict(err); errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("create %s: %w", s.table, err)
	}
	return created, nil
}

func (s *ContactsSQL) List(ctx context.Context, page Page) ([]*Contact, error) {
	if err := validatePage(page); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.query(`SELECT `+contactColumns+` FROM {table}
    ORDER BY id LIMIT ? OFFSET ?`), page.Limit, page.Skip)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.table, err)
	}
	return s.scanContacts(rows)
}

func (s *ContactsSQL) Get(ctx context.Context, id ContactID) (*Contact, error) {
	c, err := scanContact(s.db.QueryRowContext(ctx, s.query(`SELECT `+contactColumns+` FROM {table} WHERE id = ?`), id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrObjectNotFound
	case err != nil:
		return nil, fmt.Errorf("get %s: %w", s.table, err)
	}
	return c, nil
}

func (s *ContactsSQL) getTx(ctx context.Context, tx *sql.Tx, id ContactID) (*Contact, error) {
	c, err := scanContact(tx.QueryRowContext(ctx, s.query(`SELECT `+contactColumns+` FROM {table} WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrObjectNotFound
	}
	return c, err
}

func (s *ContactsSQL) Update(ctx context.Context, id ContactID, patch ContactPatch) (*Contact, error) {
	if err := validatePatch(&patch); err != nil {
		return nil, err
	}
	var updated *Contact
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		c, err := s.getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(c)
		_, err = tx.ExecContext(ctx, s.query(`UPDATE {table} SET
    firstname = ?, lastname = ?, email = ?, phone_number = ?, birthday = ?, other_details = ?, owner_id = ?
    WHERE id = ?`),
			c.Firstname, c.Lastname, c.Email, c.PhoneNumber, c.Birthday, c.OtherDetails, ownerArg(c.OwnerID), id,
		)
		if err != nil {
			return s.conflict(err)
		}
		updated = c
		return nil
	})
	switch {
	case errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrConflict):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("update %s: %w", s.table, err)
	}
	return updated, nil
}

func (s *ContactsSQL) Delete(ctx context.Context, id ContactID) (*Contact, error) {
	var removed *Contact
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		c, err := s.getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.query(`DELETE FROM {table} WHERE id = ?`), id); err != nil {
			return err
		}
		removed = c
		return nil
	})
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("delete %s: %w", s.table, err)
	}
	return removed, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *ContactsSQL) Search(ctx context.Context, query string, page Page) ([]*Contact, error) {
	if err := validatePage(page); err != nil {
		return nil, err
	}
	pattern := "%" + likeEscaper.Replace(s.dialect.foldText(query)) + "%"
	fold := s.dialect.fold
	rows, err := s.db.QueryContext(ctx, s.query(`SELECT `+contactColumns+` FROM {table}
    WHERE `+fold+`(firstname) LIKE ? ESCAPE '\'
       OR `+fold+`(lastname) LIKE ? ESCAPE '\'
       OR `+fold+`(email) LIKE ? ESCAPE '\'
       OR `+fold+`(phone_number) LIKE ? ESCAPE '\'
    ORDER BY id LIMIT ? OFFSET ?`),
		pattern, pattern, pattern, pattern, page.Limit, page.Skip,
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.table, err)
	}
	return s.scanContacts(rows)
}

func (s *ContactsSQL) UpcomingBirthdays(ctx context.Context, days int, page Page) ([]*Contact, error) {
	if err := validatePage(page); err != nil {
		return nil, err
	}
	if days < 0 {
		return nil, &ValidationError{Field: "days", Reason: "must not be negative"}
	}
	rows, err := s.db.QueryContext(ctx, s.query(`SELECT `+contactColumns+` FROM {table} ORDER BY id`))
	if err != nil {
		return nil, fmt.Errorf("list %s birthdays: %w", s.table, err)
	}
	all, err := s.scanContacts(rows)
	if err != nil {
		return nil, err
	}
	today := now(s.Now)
	matches := all[:0]
	for _, c := range all {
		if birthdayWithin(c.Birthday, today, days) {
			matches = append(matches, c)
		}
	}
	lo, hi := page.window(len(matches))
	return matches[lo:hi], nil
}
