//
// Copyright 2017 Gregory Trubetskoy. All Rights Reserved.
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

package rollup

import (
	"math"
	"strconv"
)

// Sentinel is the raw int16 used for "not available" when a Value has
// to be flattened for export (displays, wire formats).
const Sentinel = math.MinInt16

// Value is a slot or mean that may not be available yet. Its zero
// value is NA.
type Value struct {
	v  int16
	ok bool
}

// NA is the not available Value.
var NA = Value{}

// Known returns an available Value holding v.
func Known(v int16) Value { return Value{v: v, ok: true} }

// Valid tells whether the value is available.
func (v Value) Valid() bool { return v.ok }

// Int16 returns the value and whether it is available.
func (v Value) Int16() (int16, bool) { return v.v, v.ok }

// Raw returns the value, or Sentinel if it is not available. Note
// that a real measurement of math.MinInt16 cannot be told apart from
// Sentinel in this form.
func (v Value) Raw() int16 {
	if !v.ok {
		return Sentinel
	}
	return v.v
}

func (v Value) String() string {
	if !v.ok {
		return "--"
	}
	return strconv.Itoa(int(v.v))
}

// MarshalJSON encodes NA as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(v.v))), nil
}
