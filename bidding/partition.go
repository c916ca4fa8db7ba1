package bidding

// Partition splits n items into contiguous index ranges of ceil(n/parallelism)
// items each; the last range may be shorter. Parallelism below one is
// treated as one. Each range is [start, end).
func Partition(n, parallelism int) [][2]int {
	if n <= 0 {
		return nil
	}
	if parallelism < 1 {
		parallelism = 1
	}
	size := (n + parallelism - 1) / parallelism

	ranges := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		ranges = append(ranges, [2]int{start, min(start+size, n)})
	}
	return ranges
}
