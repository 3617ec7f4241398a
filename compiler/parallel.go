package compiler

import (
	"golang.org/x/sync/errgroup"

	"github.com/baehyunsol/Sodigy-sub004/mir"
)

// LowerParallel lowers units on up to workers goroutines. Every unit gets
// its own Session over shared read-only Symbols, and results keep the same
// order as Lower, so linking either output gives identical executables.
func LowerParallel(prog *mir.Program, workers int) ([]*Unit, error) {
	symbols := NewSymbols(prog)
	jobs := unitJobs(prog)
	units := make([]*Unit, len(jobs))

	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i, j := range jobs {
		g.Go(func() error {
			u, err := NewSession(symbols).lowerJob(j)
			if err != nil {
				return err
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return units, nil
}
