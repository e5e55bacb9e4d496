package core

import (
	"context"
	"sync"

	"github.com/signalsfoundry/trajectory-planner/model"
)

// BatchResult is the outcome of one problem in a batch.
type BatchResult struct {
	Trajectory model.Trajectory
	Result     model.OptimizationResult
	Err        error
}

type solveJob struct {
	index   int
	problem model.BoundaryProblem
}

// SolveBatch solves independent problems on a fixed number of workers and
// returns results in input order. The workers share only the planner's
// read-only physical model. Problems not started before ctx is done report
// ctx.Err().
func (p *Planner) SolveBatch(ctx context.Context, problems []model.BoundaryProblem, workers int) []BatchResult {
	results := make([]BatchResult, len(problems))
	if len(problems) == 0 {
		return results
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(problems) {
		workers = len(problems)
	}

	started := make([]bool, len(problems))
	jobs := make(chan solveJob, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				traj, res, err := p.Solve(ctx, job.problem)
				results[job.index] = BatchResult{Trajectory: traj, Result: res, Err: err}
			}
		}()
	}

	func() {
		defer close(jobs)
		for i, problem := range problems {
			select {
			case jobs <- solveJob{index: i, problem: problem}:
				started[i] = true
			case <-ctx.Done():
				return
			}
		}
	}()
	wg.Wait()

	for i := range results {
		if !started[i] {
			results[i].Err = ctx.Err()
		}
	}
	return results
}
