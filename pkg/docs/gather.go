package docs

import (
	"strconv"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/tidwall/gjson"

	"github.com/unum-cloud/ukvdb/pkg/kv"
)

// ColumnType is a requested gather output type.
type ColumnType int

const (
	ColumnInt32 ColumnType = iota
	ColumnInt64
	ColumnFloat64
	ColumnString
	ColumnBool
)

// GatherColumn requests one (field-path, desired-type) projection column.
type GatherColumn struct {
	Path string
	Type ColumnType
}

// Column is one gathered output column: parallel validity/conversion/
// collision bitmaps (indexed the same as the input key batch) alongside the
// realized Arrow array.
type Column struct {
	Validity   []bool
	Conversion []bool
	Collision  []bool
	Array      arrow.Array
}

// Gather is the analytics primitive: for each requested column, walks the
// batch of documents once and produces a validity/conversion/collision
// bitmap plus a columnar Arrow array, per spec.
func (s *Store) Gather(keys []kv.Key, columns []GatherColumn, mem memory.Allocator) ([]Column, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	entries, err := s.Accessor.Read(s.Collection, keys)
	if err != nil {
		return nil, err
	}

	out := make([]Column, len(columns))
	for ci, col := range columns {
		validity := make([]bool, len(keys))
		conversion := make([]bool, len(keys))
		collision := make([]bool, len(keys))
		builder := newBuilder(col.Type, mem)

		for i, ent := range entries {
			if !ent.Present {
				builder.AppendNull()
				continue
			}
			field := fieldAt(ent.Value, col.Path)
			if !field.Exists() {
				builder.AppendNull()
				continue
			}
			ok, converted, isCollision := appendGathered(builder, col.Type, field)
			validity[i] = ok
			conversion[i] = converted
			collision[i] = isCollision
		}

		out[ci] = Column{
			Validity:   validity,
			Conversion: conversion,
			Collision:  collision,
			Array:      builder.NewArray(),
		}
		builder.Release()
	}
	return out, nil
}

func newBuilder(t ColumnType, mem memory.Allocator) array.Builder {
	switch t {
	case ColumnInt32:
		return array.NewInt32Builder(mem)
	case ColumnInt64:
		return array.NewInt64Builder(mem)
	case ColumnFloat64:
		return array.NewFloat64Builder(mem)
	case ColumnString:
		return array.NewStringBuilder(mem)
	case ColumnBool:
		return array.NewBooleanBuilder(mem)
	default:
		return array.NewStringBuilder(mem)
	}
}

// appendGathered attempts to cast field to the requested type, appending
// either the cast value or a null to builder. It returns (validity,
// conversion, collision) per the gather bitmap semantics: a missing cast
// target (wrong JSON kind entirely, e.g. object where scalar expected) is a
// collision; a same-kind-but-different-representation cast (numeric string
// to integer) is a conversion.
func appendGathered(builder array.Builder, t ColumnType, field gjson.Result) (validity, conversion, collision bool) {
	structural := field.IsObject() || field.IsArray()

	switch t {
	case ColumnInt32:
		b := builder.(*array.Int32Builder)
		if structural {
			b.AppendNull()
			return false, false, true
		}
		if field.Type == gjson.Number {
			b.Append(int32(field.Int()))
			return true, false, false
		}
		if field.Type == gjson.String {
			if n, err := strconv.ParseInt(field.String(), 10, 32); err == nil {
				b.Append(int32(n))
				return true, true, false
			}
		}
		b.AppendNull()
		return false, false, true

	case ColumnInt64:
		b := builder.(*array.Int64Builder)
		if structural {
			b.AppendNull()
			return false, false, true
		}
		if field.Type == gjson.Number {
			b.Append(field.Int())
			return true, false, false
		}
		if field.Type == gjson.String {
			if n, err := strconv.ParseInt(field.String(), 10, 64); err == nil {
				b.Append(n)
				return true, true, false
			}
		}
		b.AppendNull()
		return false, false, true

	case ColumnFloat64:
		b := builder.(*array.Float64Builder)
		if structural {
			b.AppendNull()
			return false, false, true
		}
		if field.Type == gjson.Number {
			b.Append(field.Float())
			return true, false, false
		}
		if field.Type == gjson.String {
			if f, err := strconv.ParseFloat(field.String(), 64); err == nil {
				b.Append(f)
				return true, true, false
			}
		}
		b.AppendNull()
		return false, false, true

	case ColumnBool:
		b := builder.(*array.BooleanBuilder)
		if structural {
			b.AppendNull()
			return false, false, true
		}
		if field.Type == gjson.True || field.Type == gjson.False {
			b.Append(field.Bool())
			return true, false, false
		}
		if field.Type == gjson.String {
			if v, err := strconv.ParseBool(field.String()); err == nil {
				b.Append(v)
				return true, true, false
			}
		}
		b.AppendNull()
		return false, false, true

	case ColumnString:
		b := builder.(*array.StringBuilder)
		if structural {
			b.AppendNull()
			return false, false, true
		}
		b.Append(field.String())
		converted := field.Type != gjson.String
		return true, converted, false

	default:
		builder.AppendNull()
		return false, false, true
	}
}
