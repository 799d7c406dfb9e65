package services

import (
	"context"
	"sync"
)

// runPool calls fn for every index in [0,n) using at most workers
// goroutines. Indexes not yet started when ctx is cancelled are skipped;
// fn is responsible for honouring ctx within a call.
func runPool(ctx context.Context, workers, n int, fn func(ctx context.Context, i int)) {
	if n == 0 {
		return
	}
	workers = max(1, min(workers, n))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(ctx, i)
			}
		}()
	}

	func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()
	wg.Wait()
}
