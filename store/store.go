// Package store defines the keyed document persistence contract used by goGuard
// and the helpers shared by its backends.
//
// A [Store] holds one logical collection per entity. Records are flat documents
// whose values are restricted to the normalized kinds string, bool, int64,
// []string and map[string]string, which every backend can round-trip exactly.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrConditionFailed is returned by Update when a condition predicate does
	// not hold and by Create when the key is already taken.
	ErrConditionFailed = errors.New("store: condition failed")
	// ErrUnavailable wraps every backend failure that is not a lookup miss or a
	// failed condition.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// Store is the persistence collaborator. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the record stored under key or ErrNotFound.
	Get(ctx context.Context, collection, key string) (Record, error)
	// Put writes rec under key, replacing any existing record.
	Put(ctx context.Context, collection, key string, rec Record) error
	// Create writes rec under key only if no record exists there yet, and
	// returns ErrConditionFailed otherwise. The existence check and the write
	// are atomic with respect to other Create and Update calls.
	Create(ctx context.Context, collection, key string, rec Record) error
	// Update merges fields into the record under key. A nil field value removes
	// the field. When conds are given the merge happens only if every predicate
	// holds against the current record; otherwise ErrConditionFailed is returned.
	// The check and the write are atomic with respect to other Update calls.
	Update(ctx context.Context, collection, key string, fields Record, conds ...Predicate) error
	// Delete removes the record under key. Deleting a missing record is not an error.
	Delete(ctx context.Context, collection, key string) error
	// Query returns every record of collection matching all preds, sorted by
	// order when it is non-nil.
	Query(ctx context.Context, collection string, preds []Predicate, order *Order) ([]Record, error)
}

// Unavailable wraps err with ErrUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// Record is a flat document.
type Record map[string]any

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		switch typed := v.(type) {
		case []string:
			cp := make([]string, len(typed))
			copy(cp, typed)
			out[k] = cp
		case map[string]string:
			cp := make(map[string]string, len(typed))
			for mk, mv := range typed {
				cp[mk] = mv
			}
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// String returns the string value of field, or "".
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Bool returns the bool value of field, or false.
func (r Record) Bool(field string) bool {
	b, _ := r[field].(bool)
	return b
}

// Int64 returns the integer value of field, or 0.
func (r Record) Int64(field string) int64 {
	n, _ := toInt64(r[field])
	return n
}

// Strings returns the string list value of field, or nil.
func (r Record) Strings(field string) []string {
	s, _ := r[field].([]string)
	return s
}

// StringMap returns the map value of field, or nil.
func (r Record) StringMap(field string) map[string]string {
	m, _ := r[field].(map[string]string)
	return m
}

// Normalize converts decoded values (float64 and json-style numbers, []any,
// map[string]any) back into the normalized kinds. Backends that decode through
// JSON or attribute values call it on every record they return.
func Normalize(r Record) Record {
	for k, v := range r {
		r[k] = normalizeValue(v)
	}
	return r
}

func normalizeValue(v any) any {
	switch typed := v.(type) {
	case nil, string, bool, int64, []string, map[string]string:
		return v
	case int:
		return int64(typed)
	case int32:
		return int64(typed)
	case uint32:
		return int64(typed)
	case float64:
		if typed == math.Trunc(typed) && math.Abs(typed) < 1<<62 {
			return int64(typed)
		}
		return typed
	case interface{ Int64() (int64, error) }:
		if n, err := typed.Int64(); err == nil {
			return n
		}
		return v
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				return v
			}
			out = append(out, s)
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(typed))
		for mk, mv := range typed {
			s, ok := mv.(string)
			if !ok {
				return v
			}
			out[mk] = s
		}
		return out
	default:
		return v
	}
}

// Op is a predicate comparison operator.
type Op uint8

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLte
	OpGt
	OpGte
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	default:
		return "op(" + strconv.Itoa(int(o)) + ")"
	}
}

// Predicate compares one record field against a value.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, value any) Predicate  { return Predicate{Field: field, Op: OpEq, Value: value} }
func Ne(field string, value any) Predicate  { return Predicate{Field: field, Op: OpNe, Value: value} }
func Lt(field string, value any) Predicate  { return Predicate{Field: field, Op: OpLt, Value: value} }
func Lte(field string, value any) Predicate { return Predicate{Field: field, Op: OpLte, Value: value} }
func Gt(field string, value any) Predicate  { return Predicate{Field: field, Op: OpGt, Value: value} }
func Gte(field string, value any) Predicate { return Predicate{Field: field, Op: OpGte, Value: value} }

// Order sorts query results by one field.
type Order struct {
	Field string
	Desc  bool
}

// Match reports whether rec satisfies every predicate. A missing field only
// satisfies OpNe.
func Match(rec Record, preds []Predicate) bool {
	for _, p := range preds {
		if !matchOne(rec, p) {
			return false
		}
	}
	return true
}

func matchOne(rec Record, p Predicate) bool {
	v, ok := rec[p.Field]
	if !ok || v == nil {
		return p.Op == OpNe
	}
	cmp, comparable := compare(v, normalizeValue(p.Value))
	if !comparable {
		return p.Op == OpNe
	}
	switch p.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	default:
		return false
	}
}

func compare(a, b any) (int, bool) {
	if an, ok := toInt64(a); ok {
		bn, ok := toInt64(b)
		if !ok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// SortRecords orders recs in place. Records missing the field sort first.
func SortRecords(recs []Record, order *Order) {
	if order == nil || order.Field == "" {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		cmp, ok := compare(recs[i][order.Field], recs[j][order.Field])
		if !ok {
			_, iHas := recs[i][order.Field]
			return !iHas && !order.Desc
		}
		if order.Desc {
			return cmp > 0
		}
		return cmp < 0
	})
}
