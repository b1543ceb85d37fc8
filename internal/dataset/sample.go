package dataset

import (
	"math/rand"
	"sort"
)

// randomSeed keeps random sampling reproducible between runs.
const randomSeed = 42

// sampler keeps a bounded subset of a stream of cells. Head mode keeps the
// first limit cells; random mode keeps a uniform reservoir sample and returns
// it in stream order.
type sampler struct {
	limit int
	mode  SampleMode
	rng   *rand.Rand

	seen  int
	cells []Cell
	rows  []int
}

func newSampler(limit int, mode SampleMode) *sampler {
	s := &sampler{limit: limit, mode: mode}
	if mode == SampleRandom {
		s.rng = rand.New(rand.NewSource(randomSeed))
	}
	return s
}

func (s *sampler) add(c Cell) {
	row := s.seen
	s.seen++

	if s.limit <= 0 || len(s.cells) < s.limit {
		s.cells = append(s.cells, c)
		s.rows = append(s.rows, row)
		return
	}
	if s.mode != SampleRandom {
		return
	}
	if j := s.rng.Intn(s.seen); j < s.limit {
		s.cells[j] = c
		s.rows[j] = row
	}
}

func (s *sampler) result() []Cell {
	if s.mode != SampleRandom {
		return s.cells
	}
	idx := make([]int, len(s.cells))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return s.rows[idx[a]] < s.rows[idx[b]] })
	out := make([]Cell, len(idx))
	for i, k := range idx {
		out[i] = s.cells[k]
	}
	return out
}
