// Package facade holds one facade per server subsystem. Each is a
// declaration over subsystem.Facade: the mirror it keeps, the opcodes that
// change it, and the operations that build and send requests. Operations
// never touch the mirror; only server confirmations do.
package facade

import (
	"sync"

	"github.com/energizer-project/realmlink/internal/subsystem"
)

// recentLimit bounds the "recent" lists kept in mirrors.
const recentLimit = 20

// mergeFeeds subscribes to every feed and funnels them into one channel.
// A full output channel drops the record, like a single feed does.
func mergeFeeds[T any](feeds ...*subsystem.Feed[T]) (<-chan T, func()) {
	out := make(chan T, subsystem.DefaultFeedBuffer)
	cancels := make([]func(), 0, len(feeds))

	var wg sync.WaitGroup
	for _, f := range feeds {
		ch, cancel := f.Subscribe()
		cancels = append(cancels, cancel)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := range ch {
				select {
				case out <- v:
				default:
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			for _, cancel := range cancels {
				cancel()
			}
		})
	}
}

// prepend returns a new slice with v in front of list, capped at limit.
// The input is never modified, so earlier snapshots stay intact.
func prepend[T any](list []T, v T, limit int) []T {
	n := len(list) + 1
	if n > limit {
		n = limit
	}
	out := make([]T, 0, n)
	out = append(out, v)
	for _, x := range list {
		if len(out) == n {
			break
		}
		out = append(out, x)
	}
	return out
}
