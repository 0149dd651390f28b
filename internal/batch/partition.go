// Package batch runs a per-title task over resumable chunks with a bounded
// worker pool, an append-only error log and scheduled cooldowns.
package batch

// Partition splits items into n contiguous chunks whose sizes differ by at
// most one; the first len(items)%n chunks carry the extra item. n is clamped
// to [1, len(items)] so no chunk is empty unless items is.
func Partition[T any](items []T, n int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > len(items) {
		n = len(items)
	}
	k, m := len(items)/n, len(items)%n
	out := make([][]T, n)
	for i := 0; i < n; i++ {
		start := i*k + min(i, m)
		end := (i+1)*k + min(i+1, m)
		out[i] = items[start:end:end]
	}
	return out
}
