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

// segment is a fixed-size shift register laid over a part of the
// Buffer storage. It is kept as a ring: head is the offset (relative
// to off) of the newest slot, the slot just before it (modulo size)
// is the oldest.
type segment struct {
	off, size, head int
}

// push shifts v in as the newest value, evicting and returning the
// oldest.
func (s *segment) push(data []Value, v Value) Value {
	s.head = (s.head + s.size - 1) % s.size
	i := s.off + s.head
	evicted := data[i]
	data[i] = v
	return evicted
}

// at returns the n-th newest value, 0 being the newest.
func (s *segment) at(data []Value, n int) Value {
	return data[s.off+(s.head+n)%s.size]
}

// sum adds up the available values in the segment.
func (s *segment) sum(data []Value) int {
	total := 0
	for i := s.off; i < s.off+s.size; i++ {
		if data[i].ok {
			total += int(data[i].v)
		}
	}
	return total
}

// copyTo writes the segment newest-first into dst, which must hold at
// least size values.
func (s *segment) copyTo(data []Value, dst []Value) {
	for n := 0; n < s.size; n++ {
		dst[n] = s.at(data, n)
	}
}
