// Package actors drives the engine from many goroutines at once. Each actor
// loops until stop closes and returns only errors that point at a bug;
// contention and lost connections are counted and ignored.
package actors

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"caseflow/apperr"
	"caseflow/complaint"
	"caseflow/grievance"
	"caseflow/identity"
	"caseflow/test/chaos"
)

// World is the shared state actors pick their targets from.
type World struct {
	Engine      *grievance.Engine
	Elevator    *complaint.Coordinator
	Actor       identity.Actor
	UnitID      string
	AgreementID string
	Complaints  []string

	mu    sync.Mutex
	rng   *rand.Rand
	filed []string

	Created   atomic.Int64
	Advanced  atomic.Int64
	Elevated  atomic.Int64
	Tolerated atomic.Int64
}

func NewWorld(seed int64) *World {
	return &World{rng: rand.New(rand.NewSource(seed))}
}

func (w *World) intn(n int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rng.Intn(n)
}

func (w *World) remember(id string) {
	w.mu.Lock()
	w.filed = append(w.filed, id)
	w.mu.Unlock()
}

// pick returns a random filed case, or "" before the first one exists.
func (w *World) pick() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.filed) == 0 {
		return ""
	}
	return w.filed[w.rng.Intn(len(w.filed))]
}

func (w *World) forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, v := range w.filed {
		if v == id {
			w.filed = append(w.filed[:i], w.filed[i+1:]...)
			return
		}
	}
}

// tolerate swallows failures the engine is allowed to produce under load.
func (w *World) tolerate(op string, err error) error {
	if err == nil {
		return nil
	}
	switch apperr.KindOf(err) {
	case apperr.KindConflict, apperr.KindNotFound:
		w.Tolerated.Add(1)
		return nil
	}
	if chaos.ConnectionLost(err) {
		w.Tolerated.Add(1)
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (w *World) pause(base, spread int) {
	time.Sleep(time.Duration(base+w.intn(spread)) * time.Millisecond)
}

type loopFn func(ctx context.Context) error

func loop(ctx context.Context, stop <-chan struct{}, fn loopFn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}
		if err := fn(ctx); err != nil {
			return err
		}
	}
}

// Filer files new cases against the seeded agreement.
func Filer(ctx context.Context, w *World, stop <-chan struct{}) error {
	return loop(ctx, stop, func(ctx context.Context) error {
		c, err := w.Engine.Create(ctx, w.Actor, grievance.CreateParams{
			BargainingUnitID: w.UnitID,
			AgreementID:      w.AgreementID,
			Type:             grievance.TypeIndividual,
			Stage:            grievance.StageFormal,
			Report: grievance.ReportFields{
				Grievors:  []grievance.Grievor{{FirstName: "Stress", LastName: fmt.Sprintf("Member %d", w.intn(1000))}},
				Statement: "filed under load",
			},
		})
		if err := w.tolerate("file", err); err != nil {
			return err
		}
		if err == nil {
			w.Created.Add(1)
			w.remember(c.ID)
		}
		w.pause(10, 20)
		return nil
	})
}

// Stepper completes the current step of a random case and advances it. Two
// steppers racing on one case must see a conflict, never a duplicate step.
func Stepper(ctx context.Context, w *World, stop <-chan struct{}) error {
	return loop(ctx, stop, func(ctx context.Context) error {
		defer w.pause(15, 30)
		id := w.pick()
		if id == "" {
			return nil
		}
		d, err := w.Engine.Get(ctx, w.Actor, id)
		if err != nil {
			return w.tolerate("get", err)
		}
		for _, s := range d.Steps {
			if s.StepNumber != d.Case.CurrentStepNumber {
				continue
			}
			completed := grievance.StepCompleted
			if _, err := w.Engine.UpdateStep(ctx, w.Actor, grievance.UpdateStepParams{StepID: s.ID, Status: &completed}); err != nil {
				return w.tolerate("complete step", err)
			}
		}
		_, err = w.Engine.AdvanceStep(ctx, w.Actor, grievance.AdvanceParams{
			CaseID:     id,
			StepNumber: d.Case.CurrentStepNumber + 1,
			Stage:      grievance.StageFormal,
			DueDate:    time.Now().AddDate(0, 0, 7),
		})
		if err := w.tolerate("advance", err); err != nil {
			return err
		}
		if err == nil {
			w.Advanced.Add(1)
		}
		return nil
	})
}

// Resolver moves random cases between statuses, sometimes with outcomes so
// the resolution record is built.
func Resolver(ctx context.Context, w *World, stop <-chan struct{}) error {
	return loop(ctx, stop, func(ctx context.Context) error {
		defer w.pause(20, 40)
		id := w.pick()
		if id == "" {
			return nil
		}
		p := grievance.StatusParams{CaseID: id, Status: grievance.Statuses[w.intn(len(grievance.Statuses))]}
		if w.intn(2) == 0 {
			outcomes := "reinstated with back pay"
			p.Outcomes = &outcomes
		}
		_, err := w.Engine.UpdateStatus(ctx, w.Actor, p)
		return w.tolerate("status", err)
	})
}

// Deleter removes filed cases now and then. Elevated cases are never in the
// filed list.
func Deleter(ctx context.Context, w *World, stop <-chan struct{}) error {
	return loop(ctx, stop, func(ctx context.Context) error {
		defer w.pause(200, 200)
		id := w.pick()
		if id == "" || w.intn(4) != 0 {
			return nil
		}
		err := w.Engine.Delete(ctx, w.Actor, id)
		if err == nil {
			w.forget(id)
		}
		return w.tolerate("delete", err)
	})
}

// Elevator converts the seeded complaints. Several elevators share the same
// complaints so each is raced by all of them.
func Elevator(ctx context.Context, w *World, stop <-chan struct{}) error {
	return loop(ctx, stop, func(ctx context.Context) error {
		defer w.pause(30, 50)
		if len(w.Complaints) == 0 {
			return nil
		}
		id := w.Complaints[w.intn(len(w.Complaints))]
		res, err := w.Elevator.Convert(ctx, w.Actor, id)
		if err := w.tolerate("convert", err); err != nil {
			return err
		}
		if err == nil && res.IsNew {
			w.Elevated.Add(1)
		}
		return nil
	})
}
