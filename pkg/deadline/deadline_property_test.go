//go:build property
// +build property

package deadline

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDeadlineMonotonicityProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	// bounded so the sum stays inside u64
	properties.Property("deadline exceeds epoch end for any positive margin", prop.ForAll(
		func(start, duration, margin uint64) bool {
			return ComputeDeadline(start, duration, margin) > start+duration
		},
		gen.UInt64Range(0, 1<<62),
		gen.UInt64Range(0, 1<<60),
		gen.UInt64Range(1, 1<<60),
	))

	properties.Property("deadline grows with the margin", prop.ForAll(
		func(start, duration, margin uint64) bool {
			return ComputeDeadline(start, duration, margin+1) > ComputeDeadline(start, duration, margin)
		},
		gen.UInt64Range(0, 1<<62),
		gen.UInt64Range(0, 1<<60),
		gen.UInt64Range(0, 1<<60),
	))

	properties.Property("checked deadline never wraps", prop.ForAll(
		func(start, duration, margin uint64) bool {
			fits := start <= math.MaxUint64-duration && start+duration <= math.MaxUint64-margin
			d, ok := CheckedDeadline(start, duration, margin)
			if !ok {
				return !fits && d == 0
			}
			return fits && d >= start && d == ComputeDeadline(start, duration, margin)
		},
		gen.UInt64(),
		gen.UInt64(),
		gen.UInt64Range(0, 1<<20),
	))

	properties.TestingRun(t)
}
