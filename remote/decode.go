package remote

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Checker is implemented by records with rules a validate tag cannot express.
type Checker interface {
	Check() error
}

// Spec binds a legacy model to a typed record. The projection is derived from
// the record's json tags.
type Spec[T any] struct {
	Model  string
	fields []string
	bools  map[string]bool
}

func NewSpec[T any](model string) Spec[T] {
	var zero T
	fields, bools := jsonFields(reflect.TypeOf(zero))
	return Spec[T]{Model: model, fields: fields, bools: bools}
}

func jsonFields(rt reflect.Type) ([]string, map[string]bool) {
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	var fields []string
	bools := map[string]bool{}
	if rt.Kind() != reflect.Struct {
		return fields, bools
	}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			continue
		}
		fields = append(fields, name)
		if f.Type.Kind() == reflect.Bool {
			bools[name] = true
		}
	}
	return fields, bools
}

func (s Spec[T]) Fields() []string {
	return append([]string(nil), s.fields...)
}

// Read fetches ids and decodes them. Records that fail to decode are returned
// as DecodeErrors; the error result is reserved for the remote call itself.
func (s Spec[T]) Read(ctx context.Context, r Reader, ids []int) ([]T, []*DecodeError, error) {
	rows, err := r.ReadFields(ctx, s.Model, ids, s.fields)
	if err != nil {
		return nil, nil, err
	}
	out, bad := s.Decode(rows)
	return out, bad, nil
}

func (s Spec[T]) SearchRead(ctx context.Context, r Reader, domain Domain, opts ...SearchOption) ([]T, []*DecodeError, error) {
	rows, err := r.SearchRead(ctx, s.Model, domain, s.fields, opts...)
	if err != nil {
		return nil, nil, err
	}
	out, bad := s.Decode(rows)
	return out, bad, nil
}

func (s Spec[T]) Decode(rows []Row) ([]T, []*DecodeError) {
	out := make([]T, 0, len(rows))
	var bad []*DecodeError
	for _, row := range rows {
		rec, derr := s.decodeRow(row)
		if derr != nil {
			bad = append(bad, derr)
			continue
		}
		out = append(out, rec)
	}
	return out, bad
}

var nullLiteral = json.RawMessage("null")

func (s Spec[T]) decodeRow(row Row) (T, *DecodeError) {
	var out T
	id := rowId(row)

	// legacy servers send false for every empty non-boolean field
	normalized := make(map[string]json.RawMessage, len(row))
	for k, v := range row {
		if !s.bools[k] && string(v) == "false" {
			v = nullLiteral
		}
		normalized[k] = v
	}
	buf, err := json.Marshal(normalized)
	if err != nil {
		return out, &DecodeError{Model: s.Model, RemoteId: id, Err: err}
	}
	if err := json.Unmarshal(buf, &out); err != nil {
		derr := &DecodeError{Model: s.Model, RemoteId: id, Err: err}
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) {
			derr.Field = ute.Field
		}
		return out, derr
	}

	if err := validate.Struct(out); err != nil {
		derr := &DecodeError{Model: s.Model, RemoteId: id, Err: err}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			derr.Field = verrs[0].Field()
			derr.Err = errors.New("failed " + verrs[0].Tag() + " rule")
		}
		return out, derr
	}
	if c, ok := any(&out).(Checker); ok {
		if err := c.Check(); err != nil {
			return out, &DecodeError{Model: s.Model, RemoteId: id, Err: err}
		}
	}
	return out, nil
}

func rowId(row Row) int {
	raw, ok := row["id"]
	if !ok {
		return 0
	}
	var id int
	_ = json.Unmarshal(raw, &id)
	return id
}
