// Package jump implements Google's jump consistent hash
// (https://arxiv.org/abs/1406.2294), after github.com/dgryski/go-jump.
package jump

// Hash maps key to a bucket in [0, buckets). When buckets grows from n to
// n+1 only about 1/(n+1) of the keys move. Non-positive bucket counts map
// to 0.
func Hash(key uint64, buckets int) int {
	if buckets <= 0 {
		return 0
	}

	var b int64 = -1
	var j int64

	for j < int64(buckets) {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}

	return int(b)
}
