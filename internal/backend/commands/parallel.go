package commands

import (
	"runtime"
	"sync"
)

// parallelRows runs fn(y) for every row in [0, n), striding rows across up to GOMAXPROCS workers.
func parallelRows(n int, fn func(y int)) {
	if n <= 0 {
		return
	}
	workers := min(runtime.GOMAXPROCS(0), n)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(start int) {
			defer wg.Done()
			for y := start; y < n; y += workers {
				fn(y)
			}
		}(w)
	}
	wg.Wait()
}
