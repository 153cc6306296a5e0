package pipeline

import (
	"context"
	"sync"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/source"
)

// Outcome pairs one input with its result or error.
type Outcome struct {
	Source string
	Result *Result
	Err    error
}

// ProcessAll runs Process over inputs with up to workers goroutines.
// Outcomes are returned in input order. Once ctx is cancelled no new
// record is started; records not started carry ctx.Err().
func (p *Pipeline) ProcessAll(ctx context.Context, inputs []source.Input, workers int) []Outcome {
	if workers < 1 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	out := make([]Outcome, len(inputs))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := p.Process(ctx, inputs[i])
				out[i] = Outcome{Source: inputs[i].Name(), Result: res, Err: err}
			}
		}()
	}

	next := 0
feed:
	for ; next < len(inputs); next++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- next:
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(inputs); i++ {
		out[i] = Outcome{Source: inputs[i].Name(), Err: ctx.Err()}
	}
	return out
}

// Rows concatenates the rows of successful outcomes in order.
func Rows(outcomes []Outcome) []record.Row {
	var rows []record.Row
	for _, o := range outcomes {
		if o.Result != nil {
			rows = append(rows, o.Result.Rows...)
		}
	}
	return rows
}
