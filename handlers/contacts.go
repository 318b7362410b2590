package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	ds "github.com/oaiiae/contacts-api/datastores"
)

// Contacts serves a contacts resource. The same type is mounted for users,
// which share the record shape.
type Contacts struct {
	// Resource is the singular resource name used in messages, operation IDs and tags.
	// Defaults to "contact".
	Resource     string
	Store        ds.ContactsStore
	ErrorHandler func(context.Context, error)
}

type ContactFields struct {
	Firstname    string `json:"firstname"     minLength:"1"    example:"john"`
	Lastname     string `json:"lastname"      minLength:"1"    example:"smith"`
	Email        string `json:"email"         format:"email"   example:"john.smith@example.com"`
	PhoneNumber  string `json:"phone_number"  minLength:"1"    example:"+380501234567"`
	Birthday     string `json:"birthday"      format:"date"    example:"1999-12-31"`
	OtherDetails string `json:"other_details,omitempty"        example:"met at the conference"`
	OwnerID      *int64 `json:"owner_id,omitempty"             example:"1" doc:"ID of the owning user"`
}

type ContactModel struct {
	ID ds.ContactID `json:"id" readOnly:"true" example:"12"`

	ContactFields
}

// ContactPatchModel lists the fields of a partial update, absent fields are left untouched.
type ContactPatchModel struct {
	Firstname    *string `json:"firstname,omitempty"     minLength:"1"`
	Lastname     *string `json:"lastname,omitempty"      minLength:"1"`
	Email        *string `json:"email,omitempty"         format:"email"`
	PhoneNumber  *string `json:"phone_number,omitempty"  minLength:"1"`
	Birthday     *string `json:"birthday,omitempty"      format:"date"`
	OtherDetails *string `json:"other_details,omitempty"`
	OwnerID      *int64  `json:"owner_id,omitempty"`
}

func (h *Contacts) resource() string {
	if h.Resource == "" {
		return "contact"
	}
	return h.Resource
}

func (h *Contacts) plural() string { return h.resource() + "s" }

func (h *Contacts) op(id string) func(*huma.Operation) {
	return opID(id, h.plural())
}

func toModel(c *ds.Contact) ContactModel {
	return ContactModel{
		ID: c.ID,
		ContactFields: ContactFields{
			Firstname:    c.Firstname,
			Lastname:     c.Lastname,
			Email:        c.Email,
			PhoneNumber:  c.PhoneNumber,
			Birthday:     c.Birthday,
			OtherDetails: c.OtherDetails,
			OwnerID:      c.OwnerID,
		},
	}
}

func toModels(contacts []*ds.Contact) []ContactModel {
	body := make([]ContactModel, 0, len(contacts))
	for _, contact := range contacts {
		body = append(body, toModel(contact))
	}
	return body
}

// storeError maps the store errors to their HTTP status, other errors are left as is.
func (h *Contacts) storeError(err error) error {
	var (
		conflict *ds.ConflictError
		invalid  *ds.ValidationError
	)
	switch {
	case errors.Is(err, ds.ErrObjectNotFound):
		return huma.Error404NotFound(h.resource()+" not found", err)
	case errors.As(err, &conflict):
		return huma.Error409Conflict(h.resource()+" with this "+conflict.Field+" already exists", err)
	case errors.As(err, &invalid):
		return huma.Error422UnprocessableEntity("validation failed", &huma.ErrorDetail{
			Message:  invalid.Reason,
			Location: location(invalid.Field),
		})
	default:
		return err
	}
}

// location returns where the request carries the field a store rejected.
func location(field string) string {
	switch field {
	case "skip", "limit":
		return "query." + field
	case "days":
		return "path." + field
	default:
		return "body." + field
	}
}

func (h *Contacts) RegisterList(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/",
		handlerWithErrorHandler(h.list, h.ErrorHandler),
		h.op("list-"+h.plural()),
		opErrors(http.StatusUnprocessableEntity, http.StatusInternalServerError),
	)
}

type ContactsListOutput struct {
	Body []ContactModel
}

func (h *Contacts) list(ctx context.Context, input *struct {
	PageParams
}) (*ContactsListOutput, error) {
	contacts, err := h.Store.List(ctx, ds.Page{Skip: input.Skip, Limit: input.Limit})
	if err != nil {
		return nil, h.storeError(err)
	}
	return &ContactsListOutput{Body: toModels(contacts)}, nil
}

// RegisterCreate serves POST /. A duplicate email or phone number answers
// 409 Conflict, payload errors answer 422, so clients can tell them apart.
func (h *Contacts) RegisterCreate(api huma.API) { // called by [huma.AutoRegister]
	huma.Post(api, "/",
		handlerWithErrorHandler(h.create, h.ErrorHandler),
		h.op("create-"+h.resource()),
		opStatus(http.StatusCreated),
		opErrors(http.StatusConflict, http.StatusUnprocessableEntity, http.StatusInternalServerError),
	)
}

type ContactOutput struct {
	Body ContactModel
}

func (h *Contacts) create(ctx context.Context, input *struct {
	Body ContactFields
}) (*ContactOutput, error) {
	contact, err := h.Store.Create(ctx, &ds.Contact{
		Firstname:    input.Body.Firstname,
		Lastname:     input.Body.Lastname,
		Email:        input.Body.Email,
		PhoneNumber:  input.Body.PhoneNumber,
		Birthday:     input.Body.Birthday,
		OtherDetails: input.Body.OtherDetails,
		OwnerID:      input.Body.OwnerID,
	})
	if err != nil {
		return nil, h.storeError(err)
	}
	return &ContactOutput{Body: toModel(contact)}, nil
}

func (h *Contacts) RegisterGet(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/{id}",
		handlerWithErrorHandler(h.get, h.ErrorHandler),
		h.op("get-"+h.resource()),
		opErrors(http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError),
	)
}

func (h *Contacts) get(ctx context.Context, input *struct {
	ID ds.ContactID `path:"id" minimum:"1" example:"12" doc:"ID of the record to get"`
}) (*ContactOutput, error) {
	contact, err := h.Store.Get(ctx, input.ID)
	if err != nil {
		return nil, h.storeError(err)
	}
	return &ContactOutput{Body: toModel(contact)}, nil
}

func (h *Contacts) RegisterPatch(api huma.API) { // called by [huma.AutoRegister]
	huma.Patch(api, "/{id}",
		handlerWithErrorHandler(h.patch, h.ErrorHandler),
		h.op("patch-"+h.resource()),
		opErrors(http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusInternalServerError),
	)
}

func (h *Contacts) patch(ctx context.Context, input *struct {
	ID   ds.ContactID `path:"id" minimum:"1" example:"12" doc:"ID of the record to update"`
	Body ContactPatchModel
}) (*ContactOutput, error) {
	contact, err := h.Store.Update(ctx, input.ID, ds.ContactPatch{
		Firstname:    input.Body.Firstname,
		Lastname:     input.Body.Lastname,
		Email:        input.Body.Email,
		PhoneNumber:  input.Body.PhoneNumber,
		Birthday:     input.Body.Birthday,
		OtherDetails: input.Body.OtherDetails,
		OwnerID:      input.Body.OwnerID,
	})
	if err != nil {
		return nil, h.storeError(err)
	}
	return &ContactOutput{Body: toModel(contact)}, nil
}

func (h *Contacts) RegisterDelete(api huma.API) { // called by [huma.AutoRegister]
	huma.Delete(api, "/{id}",
		handlerWithErrorHandler(h.del, h.ErrorHandler),
		h.op("delete-"+h.resource()),
		opErrors(http.StatusNotFound, http.StatusInternalServerError),
	)
}

func (h *Contacts) del(ctx context.Context, input *struct {
	ID ds.ContactID `path:"id" minimum:"1" example:"12" doc:"ID of the record to delete"`
}) (*struct{}, error) {
	if _, err := h.Store.Delete(ctx, input.ID); err != nil {
		return nil, h.storeError(err)
	}
	return nil, nil
}

// RegisterSearch serves GET /search/{query}. Search has its own path segment
// since GET /{query} would be the same route as GET /{id}.
func (h *Contacts) RegisterSearch(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/search/{query}",
		handlerWithErrorHandler(h.search, h.ErrorHandler),
		h.op("search-"+h.plural()),
		opErrors(http.StatusUnprocessableEntity, http.StatusInternalServerError),
	)
}

func (h *Contacts) search(ctx context.Context, input *struct {
	Query string `path:"query" minLength:"1" example:"smith" doc:"text searched in names, email and phone number"`
	PageParams
}) (*ContactsListOutput, error) {
	contacts, err := h.Store.Search(ctx, input.Query, ds.Page{Skip: input.Skip, Limit: input.Limit})
	if err != nil {
		return nil, h.storeError(err)
	}
	return &ContactsListOutput{Body: toModels(contacts)}, nil
}

func (h *Contacts) RegisterBirthdays(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/birthdays/{days}",
		handlerWithErrorHandler(h.birthdays, h.ErrorHandler),
		h.op("list-"+h.resource()+"-birthdays"),
		opErrors(http.StatusUnprocessableEntity, http.StatusInternalServerError),
	)
}

func (h *Contacts) birthdays(ctx context.Context, input *struct {
	Days int `path:"days" minimum:"0" maximum:"366" example:"7" doc:"number of days ahead of today"`
	PageParams
}) (*ContactsListOutput, error) {
	contacts, err := h.Store.UpcomingBirthdays(ctx, input.Days, ds.Page{Skip: input.Skip, Limit: input.Limit})
	if err != nil {
		return nil, h.storeError(err)
	}
	return &ContactsListOutput{Body: toModels(contacts)}, nil
}
