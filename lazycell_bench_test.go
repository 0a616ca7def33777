package lazycell

import (
	"sync"
	"testing"
)

// Benchmark steady-state reads of an already-initialized cell, per
// policy. This is the number the policy table's trade-off column is
// about: ordered and once cost an atomic load, locked pays for its
// mutex on every call forever.
func BenchmarkSteadyStateGet(b *testing.B) {
	for _, tc := range correctPolicies {
		b.Run(tc.name, func(b *testing.B) {
			cell := New(func() (int, error) {
				return 42, nil
			}, WithPolicy(tc.policy))
			if _, err := cell.Get(); err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := cell.Get(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Benchmark steady-state reads under parallel contention.
func BenchmarkSteadyStateGetParallel(b *testing.B) {
	for _, tc := range correctPolicies {
		b.Run(tc.name, func(b *testing.B) {
			cell := New(func() (int, error) {
				return 42, nil
			}, WithPolicy(tc.policy))
			if _, err := cell.Get(); err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					if _, err := cell.Get(); err != nil {
						b.Error(err)
						return
					}
				}
			})
		})
	}
}

// Benchmark the full lifecycle: fresh cell, first Get wins the
// construction. Dominated by allocation plus one initializer call.
func BenchmarkFirstGet(b *testing.B) {
	for _, tc := range correctPolicies {
		b.Run(tc.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				cell := New(func() (int, error) {
					return 42, nil
				}, WithPolicy(tc.policy))
				if _, err := cell.Get(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Benchmark the contended first Get: many goroutines racing one fresh
// cell, one of them winning.
func BenchmarkContendedFirstGet(b *testing.B) {
	const goroutines = 8

	for _, tc := range correctPolicies {
		b.Run(tc.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				cell := New(func() (int, error) {
					return 42, nil
				}, WithPolicy(tc.policy))

				var wg sync.WaitGroup
				wg.Add(goroutines)
				for g := 0; g < goroutines; g++ {
					go func() {
						defer wg.Done()
						if _, err := cell.Get(); err != nil {
							b.Error(err)
						}
					}()
				}
				wg.Wait()
			}
		})
	}
}
