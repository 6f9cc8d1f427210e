package migration

import (
	"context"
	"github.com/pkg/errors"
)

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Outcome is the result of executing one direction of one unit
type Outcome struct {
	Key       string
	Direction Direction
	Err       error
}

func (o Outcome) Ok() bool {
	return o.Err == nil
}

// Execute runs the requested direction of the unit and captures whatever
// the body returns, or panics with, as the outcome. It never fails itself.
func Execute(ctx context.Context, ex Executor, key string, u Unit, d Direction) (o Outcome) {
	o.Key = key
	o.Direction = d

	defer func() {
		if r := recover(); r != nil {
			o.Err = errors.Errorf("migration %s panicked while going %s: %v", key, d, r)
		}
	}()

	var err error
	switch d {
	case DirectionUp:
		err = u.Up(ctx, ex)
	case DirectionDown:
		err = u.Down(ctx, ex)
	default:
		err = errors.Errorf("unknown direction [%s]", d)
	}

	if err != nil {
		o.Err = errors.Wrapf(err, "migration %s failed going %s", key, d)
	}

	return o
}
