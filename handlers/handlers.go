package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type handler[I, O any] = func(context.Context, *I) (*O, error)

func handlerWithErrorHandler[I, O any](handler handler[I, O], do func(context.Context, error)) handler[I, O] {
	if do == nil {
		return handler
	}

	return func(ctx context.Context, i *I) (*O, error) {
		o, err := handler(ctx, i)
		if err != nil {
			do(ctx, err)
		}
		return o, err
	}
}

func opErrors(codes ...int) func(*huma.Operation) {
	return func(o *huma.Operation) { o.Errors = codes }
}

// opID sets the operation ID and tags, required when one handler type is mounted at several prefixes.
func opID(id string, tags ...string) func(*huma.Operation) {
	return func(o *huma.Operation) { o.OperationID, o.Tags = id, tags }
}

func opStatus(code int) func(*huma.Operation) {
	return func(o *huma.Operation) { o.DefaultStatus = code }
}

// PageParams are the pagination query parameters of list operations.
type PageParams struct {
	Skip  int `query:"skip"  minimum:"0"                 default:"0"  doc:"number of records to skip"`
	Limit int `query:"limit" minimum:"1" maximum:"100" default:"10" doc:"maximum number of records to return"`
}
