// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package db

import (
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// matchFilter evaluates the subset of the mongo query language the core
// actually issues: dotted paths, direct equality, $in, $all, $gt, $gte,
// $lt, $lte, $ne.
func matchFilter(doc bson.M, filter bson.M) bool {
	for path, cond := range filter {
		val, ok := lookupPath(doc, path)
		if !matchCond(val, ok, cond) {
			return false
		}
	}
	return true
}

func matchCond(val any, present bool, cond any) bool {
	if ops, ok := asDoc(cond); ok && hasOperator(ops) {
		for op, arg := range ops {
			if !matchOp(val, present, op, arg) {
				return false
			}
		}
		return true
	}
	return present && eqValue(val, cond)
}

func hasOperator(d bson.M) bool {
	for k := range d {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func matchOp(val any, present bool, op string, arg any) bool {
	switch op {
	case "$in":
		if !present {
			return false
		}
		for _, want := range asList(arg) {
			if eqValue(val, want) {
				return true
			}
			// An array field matches $in when any element matches.
			for _, elem := range asList(val) {
				if eqValue(elem, want) {
					return true
				}
			}
		}
		return false
	case "$all":
		elems := asList(val)
		for _, want := range asList(arg) {
			found := false
			for _, elem := range elems {
				if eqValue(elem, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case "$ne":
		return !present || !eqValue(val, arg)
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false
		}
		a, aok := toFloat(val)
		b, bok := toFloat(arg)
		if !aok || !bok {
			return false
		}
		switch op {
		case "$gt":
			return a > b
		case "$gte":
			return a >= b
		case "$lt":
			return a < b
		default:
			return a <= b
		}
	default:
		// Unsupported operator: treat as no match rather than guessing.
		return false
	}
}

// lookupPath resolves a dotted field path against a decoded document.
func lookupPath(doc bson.M, path string) (any, bool) {
	cur := any(doc)
	for _, part := range strings.Split(path, ".") {
		d, ok := asDoc(cur)
		if !ok {
			return nil, false
		}
		cur, ok = d[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath writes a dotted field path, creating intermediate documents.
// Intermediates are written back because asDoc may have produced a fresh
// map from a bson.D.
func setPath(doc bson.M, path string, v any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asDoc(cur[part])
		if !ok {
			next = bson.M{}
		}
		cur[part] = next
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func asDoc(v any) (bson.M, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]any:
		return d, true
	case bson.D:
		m := make(bson.M, len(d))
		for _, e := range d {
			m[e.Key] = e.Value
		}
		return m, true
	default:
		return nil, false
	}
}

func asList(v any) []any {
	switch l := v.(type) {
	case bson.A:
		return l
	case []any:
		return l
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// eqValue compares a stored value against a filter value, normalizing the
// numeric types bson decoding produces.
func eqValue(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

func normalizeValue(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
