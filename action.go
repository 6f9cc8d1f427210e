package batchmig

import "github.com/denismitr/batchmig/migration"

type ActionConfigurator func(a *Action)

// Action narrows down what Rollback reverses. Steps counts the most recent
// batches, a batch selects exactly one and wins over steps.
type Action struct {
	steps int
	batch migration.Batch
}

func NewAction(cfs ...ActionConfigurator) Action {
	a := Action{steps: 1}
	for _, f := range cfs {
		f(&a)
	}

	if a.steps < 1 {
		a.steps = 1
	}

	return a
}

func WithSteps(steps int) ActionConfigurator {
	return func(a *Action) {
		a.steps = steps
	}
}

func WithBatch(batch migration.Batch) ActionConfigurator {
	return func(a *Action) {
		a.batch = batch
	}
}

func CreateConfigurators(steps int, batch uint) []ActionConfigurator {
	var configurators []ActionConfigurator
	if steps > 0 {
		configurators = append(configurators, WithSteps(steps))
	}

	if batch > 0 {
		configurators = append(configurators, WithBatch(migration.Batch(batch)))
	}

	return configurators
}
