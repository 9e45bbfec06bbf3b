package ratelimit

import (
	"strconv"
	"testing"
	"time"
)

func BenchmarkSlidingWindow_SingleIdentifier(b *testing.B) {
	rl := NewSlidingWindow(time.Minute, WithRand(neverClean))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rl.Allow("ws1", 1<<30)
	}
}

func BenchmarkSlidingWindow_ManyIdentifiers(b *testing.B) {
	rl := NewSlidingWindow(time.Minute, WithRand(neverClean))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rl.Allow("ws"+strconv.Itoa(i%1024), 1<<30)
	}
}

func BenchmarkSlidingWindow_Parallel(b *testing.B) {
	rl := NewSlidingWindow(time.Minute)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			rl.Allow("ws"+strconv.Itoa(i%64), 1<<30)
			i++
		}
	})
}
