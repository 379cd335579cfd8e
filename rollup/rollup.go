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

// Package rollup keeps a fixed-size, multi-resolution history of a
// once-a-minute integer sample. It logs values in 3 intervals:
//
//   - 1 minute interval during 5 minutes
//   - 5 minute interval during the next 55 minutes (1 hour in total)
//   - 1 hour interval during the next 23 hours (24 hours in total)
//
// along with mean values for the last minute, 5 minutes, hour and 24
// hours. All storage is allocated when the Buffer is created and all
// arithmetic is integer.
package rollup

import "fmt"

// Segment sizes. Slots is the length of the concatenated view.
const (
	MinuteSlots     = 5
	FiveMinuteSlots = 11
	HourSlots       = 23
	Slots           = MinuteSlots + FiveMinuteSlots + HourSlots
)

const (
	minutesPerFive = 5
	minutesPerHour = minutesPerFive * (FiveMinuteSlots + 1)
	minutesPerDay  = minutesPerHour * (HourSlots + 1)
)

// Window is a reporting granularity.
type Window int

const (
	Minute      Window = iota // 1 minute
	FiveMinutes               // 5 minutes
	Hour                      // 1 hour
	Day                       // 24 hours, mean only
	All                       // all segments concatenated, segment only
)

func (w Window) String() string {
	switch w {
	case Minute:
		return "1m"
	case FiveMinutes:
		return "5m"
	case Hour:
		return "1h"
	case Day:
		return "24h"
	case All:
		return "all"
	}
	return fmt.Sprintf("Window(%d)", int(w))
}

// ParseWindow is the inverse of Window.String.
func ParseWindow(s string) (Window, error) {
	for _, w := range []Window{Minute, FiveMinutes, Hour, Day, All} {
		if w.String() == s {
			return w, nil
		}
	}
	return 0, fmt.Errorf("Invalid window: %q (valid windows: 1m, 5m, 1h, 24h, all)", s)
}

// MeanWindows lists the windows that have a mean, finest first.
var MeanWindows = []Window{Minute, FiveMinutes, Hour, Day}

// Buffer is the rollup state. It is not safe for concurrent use, see
// SyncBuffer for that.
type Buffer struct {
	// 1M[5], 5M[11], 1H[23]
	data [Slots]Value

	minutes, fives, hours segment

	mean1M, mean5M, mean1H, mean24H Value

	// Number of samples ingested, never reset.
	count uint64
}

// New returns a Buffer with every slot and mean not available.
func New() *Buffer {
	return &Buffer{
		minutes: segment{off: 0, size: MinuteSlots},
		fives:   segment{off: MinuteSlots, size: FiveMinuteSlots},
		hours:   segment{off: MinuteSlots + FiveMinuteSlots, size: HourSlots},
	}
}

// Ingest adds a new sample. It must be called exactly once per
// minute, the Buffer has no clock of its own and calling it more or
// less often simply stretches or shrinks every window.
//
// The sample becomes the 1 minute mean and is shifted into the minute
// segment. Once 6 samples are in, the 5 minute mean is the mean of
// the minute segment, and every 5 samples it is shifted into the 5
// minute segment. The mean of that segment together with the current
// 5 minute mean is the hourly mean, shifted into the hour segment
// every 60 samples, which in turn yields the 24 hour mean.
func (b *Buffer) Ingest(v int16) {
	b.count++

	b.mean1M = Known(v)
	b.minutes.push(b.data[:], b.mean1M)

	if b.count < minutesPerFive+1 {
		return
	}
	b.mean5M = Known(int16(b.minutes.sum(b.data[:]) / MinuteSlots))
	if b.count%minutesPerFive != 1 {
		return
	}

	sum := b.fives.sum(b.data[:]) + int(b.mean5M.v)
	b.fives.push(b.data[:], b.mean5M)

	if b.count < minutesPerHour+1 {
		return
	}
	b.mean1H = Known(int16(sum / (FiveMinuteSlots + 1)))
	if b.count%minutesPerHour != 1 {
		return
	}

	sum = b.hours.sum(b.data[:]) + int(b.mean1H.v)
	b.hours.push(b.data[:], b.mean1H)

	if b.count < minutesPerDay+1 {
		return
	}
	b.mean24H = Known(int16(sum / (HourSlots + 1)))
}

// Count returns the number of samples ingested so far.
func (b *Buffer) Count() uint64 { return b.count }

// Mean returns the mean for the window, NA if there is not enough
// history yet or w has no mean (All).
func (b *Buffer) Mean(w Window) Value {
	switch w {
	case Minute:
		return b.mean1M
	case FiveMinutes:
		return b.mean5M
	case Hour:
		return b.mean1H
	case Day:
		return b.mean24H
	}
	return NA
}

// Segment returns a newest-first copy of the segment for w. All
// returns the three segments back to back. Day has no segment and
// returns nil.
func (b *Buffer) Segment(w Window) []Value {
	switch w {
	case Minute:
		return b.copySegment(&b.minutes)
	case FiveMinutes:
		return b.copySegment(&b.fives)
	case Hour:
		return b.copySegment(&b.hours)
	case All:
		data := b.Data()
		return data[:]
	}
	return nil
}

func (b *Buffer) copySegment(s *segment) []Value {
	result := make([]Value, s.size)
	s.copyTo(b.data[:], result)
	return result
}

// Data returns all segments concatenated (5 x 1M, 11 x 5M, 23 x 1H),
// each newest-first.
func (b *Buffer) Data() [Slots]Value {
	var result [Slots]Value
	b.minutes.copyTo(b.data[:], result[b.minutes.off:])
	b.fives.copyTo(b.data[:], result[b.fives.off:])
	b.hours.copyTo(b.data[:], result[b.hours.off:])
	return result
}

// Snapshot returns the complete state of the Buffer.
func (b *Buffer) Snapshot() Snapshot {
	s := Snapshot{
		Count:   b.count,
		Mean1M:  b.mean1M,
		Mean5M:  b.mean5M,
		Mean1H:  b.mean1H,
		Mean24H: b.mean24H,
	}
	b.minutes.copyTo(b.data[:], s.Minutes[:])
	b.fives.copyTo(b.data[:], s.FiveMinutes[:])
	b.hours.copyTo(b.data[:], s.Hours[:])
	return s
}

// Snapshot is a copy of a Buffer state, segments newest-first.
type Snapshot struct {
	Count                           uint64
	Mean1M, Mean5M, Mean1H, Mean24H Value
	Minutes                         [MinuteSlots]Value
	FiveMinutes                     [FiveMinuteSlots]Value
	Hours                           [HourSlots]Value
}

// Mean returns the snapshot mean for w, NA for All.
func (s *Snapshot) Mean(w Window) Value {
	switch w {
	case Minute:
		return s.Mean1M
	case FiveMinutes:
		return s.Mean5M
	case Hour:
		return s.Mean1H
	case Day:
		return s.Mean24H
	}
	return NA
}

// Segment returns the snapshot segment for w. Unlike
// Buffer.Segment, the slice shares memory with the snapshot.
func (s *Snapshot) Segment(w Window) []Value {
	switch w {
	case Minute:
		return s.Minutes[:]
	case FiveMinutes:
		return s.FiveMinutes[:]
	case Hour:
		return s.Hours[:]
	case All:
		result := make([]Value, 0, Slots)
		result = append(result, s.Minutes[:]...)
		result = append(result, s.FiveMinutes[:]...)
		return append(result, s.Hours[:]...)
	}
	return nil
}
