package graphql

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/apulibrary/backend/internal/domain"
	"github.com/apulibrary/backend/internal/service/catalog"
	"github.com/apulibrary/backend/internal/transport/graphql/dataloader"
	"github.com/apulibrary/backend/internal/transport/graphql/resolver"
)

// Request is the wire form of a GraphQL operation.
type Request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// Response is the wire form of a GraphQL execution result.
type Response struct {
	Data   map[string]interface{} `json:"data"`
	Errors gqlerror.List          `json:"errors,omitempty"`
}

// Executor executes GraphQL operations against the root resolver.
type Executor struct {
	schema  *ast.Schema
	res     *resolver.Resolver
	present ErrorPresenterFunc
}

// NewExecutor creates a new Executor.
func NewExecutor(res *resolver.Resolver, present ErrorPresenterFunc) *Executor {
	return &Executor{
		schema:  Schema(),
		res:     res,
		present: present,
	}
}

// PreparedOp is a parsed and validated operation ready for execution.
// The channel transport prepares an operation first to decide whether it is
// a subscription before running it.
type PreparedOp struct {
	doc  *ast.QueryDocument
	op   *ast.OperationDefinition
	vars map[string]interface{}
}

// IsSubscription reports whether the prepared operation is a subscription.
func (p *PreparedOp) IsSubscription() bool {
	return p.op.Operation == ast.Subscription
}

// RootField returns the name of the first root field of the operation. The
// channel transport uses it to pick the topic a subscription listens on.
func (p *PreparedOp) RootField() string {
	for _, f := range flatten(p.doc, p.op.SelectionSet) {
		if f.Name != "__typename" {
			return f.Name
		}
	}
	return ""
}

// Prepare parses and validates a request against the schema and selects the
// operation to run.
func (e *Executor) Prepare(req *Request) (*PreparedOp, gqlerror.List) {
	if req == nil || req.Query == "" {
		return nil, gqlerror.List{gqlerror.Errorf("query is required")}
	}

	doc, listErr := gqlparser.LoadQuery(e.schema, req.Query)
	if len(listErr) > 0 {
		return nil, listErr
	}

	var op *ast.OperationDefinition
	for _, opDef := range doc.Operations {
		if req.OperationName == "" || opDef.Name == req.OperationName {
			op = opDef
			break
		}
	}
	if op == nil {
		if req.OperationName != "" {
			return nil, gqlerror.List{gqlerror.Errorf("operation %q not found", req.OperationName)}
		}
		return nil, gqlerror.List{gqlerror.Errorf("no operation found in query")}
	}

	return &PreparedOp{doc: doc, op: op, vars: req.Variables}, nil
}

// Execute runs a query or mutation and returns a full response. Subscriptions
// are rejected here: they only make sense on the channel transport where
// pushes can follow.
func (e *Executor) Execute(ctx context.Context, req *Request) *Response {
	p, errs := e.Prepare(req)
	if len(errs) > 0 {
		return &Response{Errors: errs}
	}
	return e.ExecutePrepared(ctx, p)
}

// ExecutePrepared runs an already-prepared query or mutation.
func (e *Executor) ExecutePrepared(ctx context.Context, p *PreparedOp) *Response {
	if p.IsSubscription() {
		return &Response{Errors: gqlerror.List{
			gqlerror.Errorf("subscriptions are only supported over the channel transport"),
		}}
	}

	data := make(map[string]interface{})
	for _, f := range flatten(p.doc, p.op.SelectionSet) {
		alias := fieldAlias(f)
		if f.Name == "__typename" {
			data[alias] = rootTypename(p.op.Operation)
			continue
		}

		v, err := e.resolveRootField(ctx, p, f)
		if err != nil {
			// No partial results: a failed field fails the whole operation.
			return &Response{Errors: gqlerror.List{e.toGqlError(ctx, err)}}
		}
		data[alias] = v
	}

	return &Response{Data: data}
}

func rootTypename(op ast.Operation) string {
	switch op {
	case ast.Mutation:
		return "Mutation"
	case ast.Subscription:
		return "Subscription"
	default:
		return "Query"
	}
}

func (e *Executor) toGqlError(ctx context.Context, err error) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return gqlErr
	}
	return e.present(ctx, err)
}

// ---------------------------------------------------------------------------
// Root field dispatch
// ---------------------------------------------------------------------------

func (e *Executor) resolveRootField(ctx context.Context, p *PreparedOp, f *ast.Field) (interface{}, error) {
	args := argumentValues(f, p.vars)

	switch p.op.Operation {
	case ast.Query:
		switch f.Name {
		case "items":
			items, err := e.res.Items(ctx)
			if err != nil {
				return nil, err
			}
			return e.projectItems(ctx, p.doc, f.SelectionSet, items)

		case "user":
			email, _ := args["email"].(string)
			user, err := e.res.UserByEmail(ctx, email)
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil // nullable field
			}
			if err != nil {
				return nil, err
			}
			return e.projectUser(ctx, p.doc, f.SelectionSet, *user)
		}

	case ast.Mutation:
		switch f.Name {
		case "createItem":
			input := catalog.CreateItemInput{
				Title:       stringArg(args, "title"),
				Description: stringArg(args, "description"),
				ImageURL:    stringArg(args, "imageUrl"),
			}
			item, err := e.res.CreateItem(ctx, input)
			if err != nil {
				return nil, err
			}
			return e.projectItem(ctx, p.doc, f.SelectionSet, *item)

		case "updateItem":
			id, err := uuidArg(args, "id")
			if err != nil {
				return nil, err
			}
			input := catalog.UpdateItemInput{
				ID:          id,
				Title:       optionalStringArg(args, "title"),
				Description: optionalStringArg(args, "description"),
				ImageURL:    optionalStringArg(args, "imageUrl"),
			}
			item, err := e.res.UpdateItem(ctx, input)
			if err != nil {
				return nil, err
			}
			return e.projectItem(ctx, p.doc, f.SelectionSet, *item)

		case "createUser":
			input := catalog.CreateUserInput{
				Email:     stringArg(args, "email"),
				FirstName: stringArg(args, "firstName"),
				LastName:  stringArg(args, "lastName"),
			}
			user, err := e.res.CreateUser(ctx, input)
			if err != nil {
				return nil, err
			}
			return e.projectUser(ctx, p.doc, f.SelectionSet, *user)
		}
	}

	return nil, gqlerror.Errorf("cannot resolve field %q", f.Name)
}

// ---------------------------------------------------------------------------
// Projection
//
// Lists are projected in two phases: first every child load is queued on the
// per-request DataLoader, then the thunks are resolved. That is what turns N
// owner lookups into a single batched query.
// ---------------------------------------------------------------------------

func (e *Executor) projectItems(ctx context.Context, doc *ast.QueryDocument, sel ast.SelectionSet, items []domain.Item) ([]map[string]interface{}, error) {
	fields := flatten(doc, sel)

	var userFields []*ast.Field
	for _, f := range fields {
		if f.Name == "user" {
			userFields = append(userFields, f)
		}
	}

	owners := make([]domain.User, len(items))
	if len(userFields) > 0 {
		loaders := dataloader.FromContext(ctx)

		thunks := make([]func() (domain.User, error), len(items))
		for i, it := range items {
			thunks[i] = loaders.OwnerByID.Load(ctx, it.UserID)
		}
		for i := range thunks {
			owner, err := thunks[i]()
			if err != nil {
				return nil, err
			}
			owners[i] = owner
		}
	}

	// Owners are projected as a batch per field occurrence so that nested
	// selections batch across the whole list too.
	ownerMaps := make(map[*ast.Field][]map[string]interface{}, len(userFields))
	for _, f := range userFields {
		projected, err := e.projectUsers(ctx, doc, f.SelectionSet, owners)
		if err != nil {
			return nil, err
		}
		ownerMaps[f] = projected
	}

	out := make([]map[string]interface{}, len(items))
	for i, it := range items {
		m := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			alias := fieldAlias(f)
			switch f.Name {
			case "id":
				m[alias] = it.ID.String()
			case "title":
				m[alias] = it.Title
			case "description":
				m[alias] = it.Description
			case "imageUrl":
				m[alias] = it.ImageURL
			case "user":
				m[alias] = ownerMaps[f][i]
			case "__typename":
				m[alias] = "Item"
			}
		}
		out[i] = m
	}
	return out, nil
}

func (e *Executor) projectItem(ctx context.Context, doc *ast.QueryDocument, sel ast.SelectionSet, item domain.Item) (map[string]interface{}, error) {
	projected, err := e.projectItems(ctx, doc, sel, []domain.Item{item})
	if err != nil {
		return nil, err
	}
	return projected[0], nil
}

func (e *Executor) projectUsers(ctx context.Context, doc *ast.QueryDocument, sel ast.SelectionSet, users []domain.User) ([]map[string]interface{}, error) {
	fields := flatten(doc, sel)

	var itemsFields []*ast.Field
	for _, f := range fields {
		if f.Name == "items" {
			itemsFields = append(itemsFields, f)
		}
	}

	ownedItems := make([][]domain.Item, len(users))
	if len(itemsFields) > 0 {
		loaders := dataloader.FromContext(ctx)

		thunks := make([]func() ([]domain.Item, error), len(users))
		for i, u := range users {
			thunks[i] = loaders.ItemsByOwnerID.Load(ctx, u.ID)
		}
		for i := range thunks {
			items, err := thunks[i]()
			if err != nil {
				return nil, err
			}
			ownedItems[i] = items
		}
	}

	itemMaps := make(map[*ast.Field][][]map[string]interface{}, len(itemsFields))
	for _, f := range itemsFields {
		perUser := make([][]map[string]interface{}, len(users))
		for i := range users {
			projected, err := e.projectItems(ctx, doc, f.SelectionSet, ownedItems[i])
			if err != nil {
				return nil, err
			}
			perUser[i] = projected
		}
		itemMaps[f] = perUser
	}

	out := make([]map[string]interface{}, len(users))
	for i, u := range users {
		m := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			alias := fieldAlias(f)
			switch f.Name {
			case "id":
				m[alias] = u.ID.String()
			case "email":
				m[alias] = u.Email
			case "firstName":
				m[alias] = u.FirstName
			case "lastName":
				m[alias] = u.LastName
			case "items":
				m[alias] = itemMaps[f][i]
			case "__typename":
				m[alias] = "User"
			}
		}
		out[i] = m
	}
	return out, nil
}

func (e *Executor) projectUser(ctx context.Context, doc *ast.QueryDocument, sel ast.SelectionSet, user domain.User) (map[string]interface{}, error) {
	projected, err := e.projectUsers(ctx, doc, sel, []domain.User{user})
	if err != nil {
		return nil, err
	}
	return projected[0], nil
}

// ---------------------------------------------------------------------------
// Subscription payloads
// ---------------------------------------------------------------------------

// ResolveItemAdded builds a push response for an itemAdded event against a
// prepared subscription. The payload is projected from the event alone; no
// storage is touched during fan-out, which is why nested item lists under
// the owner are rejected here.
func (e *Executor) ResolveItemAdded(ctx context.Context, p *PreparedOp, event domain.ItemWithOwner) *Response {
	data := make(map[string]interface{})
	for _, f := range flatten(p.doc, p.op.SelectionSet) {
		alias := fieldAlias(f)
		switch f.Name {
		case "itemAdded":
			payload, err := projectEventItem(p.doc, f.SelectionSet, event)
			if err != nil {
				return &Response{Errors: gqlerror.List{e.toGqlError(ctx, err)}}
			}
			data[alias] = payload
		case "__typename":
			data[alias] = "Subscription"
		}
	}
	return &Response{Data: data}
}

func projectEventItem(doc *ast.QueryDocument, sel ast.SelectionSet, event domain.ItemWithOwner) (map[string]interface{}, error) {
	m := make(map[string]interface{})
	for _, f := range flatten(doc, sel) {
		alias := fieldAlias(f)
		switch f.Name {
		case "id":
			m[alias] = event.ID.String()
		case "title":
			m[alias] = event.Title
		case "description":
			m[alias] = event.Description
		case "imageUrl":
			m[alias] = event.ImageURL
		case "user":
			owner, err := projectEventOwner(doc, f.SelectionSet, event.Owner)
			if err != nil {
				return nil, err
			}
			m[alias] = owner
		case "__typename":
			m[alias] = "Item"
		}
	}
	return m, nil
}

func projectEventOwner(doc *ast.QueryDocument, sel ast.SelectionSet, owner domain.User) (map[string]interface{}, error) {
	m := make(map[string]interface{})
	for _, f := range flatten(doc, sel) {
		alias := fieldAlias(f)
		switch f.Name {
		case "id":
			m[alias] = owner.ID.String()
		case "email":
			m[alias] = owner.Email
		case "firstName":
			m[alias] = owner.FirstName
		case "lastName":
			m[alias] = owner.LastName
		case "items":
			return nil, gqlerror.Errorf("field %q is not available in subscription payloads", "items")
		case "__typename":
			m[alias] = "User"
		}
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Selection and argument helpers
// ---------------------------------------------------------------------------

// flatten expands fragment spreads and inline fragments into a flat field list.
func flatten(doc *ast.QueryDocument, selections ast.SelectionSet) []*ast.Field {
	var fields []*ast.Field
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			fields = append(fields, s)
		case *ast.FragmentSpread:
			if frag := doc.Fragments.ForName(s.Name); frag != nil {
				fields = append(fields, flatten(doc, frag.SelectionSet)...)
			}
		case *ast.InlineFragment:
			fields = append(fields, flatten(doc, s.SelectionSet)...)
		}
	}
	return fields
}

func fieldAlias(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// argumentValues resolves a field's arguments against the request variables.
func argumentValues(f *ast.Field, vars map[string]interface{}) map[string]interface{} {
	args := make(map[string]interface{}, len(f.Arguments))
	for _, arg := range f.Arguments {
		args[arg.Name] = resolveValue(arg.Value, vars)
	}
	return args
}

// resolveValue resolves an AST value to a Go value.
func resolveValue(value *ast.Value, vars map[string]interface{}) interface{} {
	if value == nil {
		return nil
	}

	switch value.Kind {
	case ast.Variable:
		if vars != nil {
			return vars[value.Raw]
		}
		return nil
	case ast.IntValue:
		n, _ := strconv.ParseInt(value.Raw, 10, 64)
		return n
	case ast.FloatValue:
		f, _ := strconv.ParseFloat(value.Raw, 64)
		return f
	case ast.StringValue, ast.BlockValue:
		return value.Raw
	case ast.BooleanValue:
		return value.Raw == "true"
	case ast.NullValue:
		return nil
	case ast.EnumValue:
		return value.Raw
	case ast.ListValue:
		var list []interface{}
		for _, child := range value.Children {
			list = append(list, resolveValue(child.Value, vars))
		}
		return list
	case ast.ObjectValue:
		obj := make(map[string]interface{})
		for _, child := range value.Children {
			obj[child.Name] = resolveValue(child.Value, vars)
		}
		return obj
	default:
		return value.Raw
	}
}

func stringArg(args map[string]interface{}, name string) string {
	s, _ := args[name].(string)
	return s
}

func optionalStringArg(args map[string]interface{}, name string) *string {
	v, ok := args[name]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func uuidArg(args map[string]interface{}, name string) (uuid.UUID, error) {
	s, _ := args[name].(string)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, &domain.ValidationError{Errors: []domain.FieldError{
			{Field: name, Message: "must be a valid id"},
		}}
	}
	return id, nil
}
