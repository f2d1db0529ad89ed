package conn

import (
	"crypto/rand"
	"encoding/binary"
	"sort"

	"github.com/5dchess/5dcserver/pkg/wire"
)

// pickVariant draws uniformly from allowed, per spec.md §9 "Random
// resolves at join, independently per host". The keys are sorted
// first so the draw is deterministic given the same random index,
// rather than depending on Go's randomized map iteration order.
func pickVariant(allowed map[int64]bool) wire.Variant {
	keys := make([]int64, 0, len(allowed))
	for v := range allowed {
		keys = append(keys, v)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if len(keys) == 0 {
		return wire.VariantRandom
	}
	return wire.Variant(keys[randIntn(len(keys))])
}

// pickColor draws White or Black with equal probability.
func pickColor() wire.Color {
	if randIntn(2) == 0 {
		return wire.ColorWhite
	}
	return wire.ColorBlack
}

func randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	v := binary.LittleEndian.Uint64(buf[:]) &^ (1 << 63)
	return int(v % uint64(n))
}
