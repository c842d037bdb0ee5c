package services

import (
	"context"
	"errors"
	"time"

	"encyclopedia-cms/events"
	"encyclopedia-cms/models"
	"encyclopedia-cms/repositories"

	"go.uber.org/zap"
	"gopkg.in/go-playground/validator.v9"
)

// SystemActor is recorded as the actor of transitions the engine makes on
// its own, such as consensus resolution.
const SystemActor = "system"

// Deps are shared by every service.
type Deps struct {
	Store repositories.Store
	Bus   *events.Bus
	Log   *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// outbox collects events written inside a transaction so they can be
// published once it commits.
type outbox struct {
	pending []models.DomainEvent
}

func (o *outbox) record(ctx context.Context, r repositories.Repositories, event models.DomainEvent) error {
	if err := r.Events.Append(ctx, &event); err != nil {
		return err
	}
	o.pending = append(o.pending, event)
	return nil
}

// transact runs fn in one transaction and publishes its events after commit.
func (d Deps) transact(ctx context.Context, fn func(r repositories.Repositories, out *outbox) error) error {
	out := &outbox{}
	err := d.Store.Transaction(ctx, func(r repositories.Repositories) error {
		out.pending = out.pending[:0]
		return fn(r, out)
	})
	if err != nil {
		return err
	}
	if d.Bus != nil {
		d.Bus.Publish(out.pending...)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

var validate = validator.New()

// validateStruct turns validator failures into ErrorValidation, keeping the
// field errors as the cause for translation at the edge.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		return models.ErrorValidation{
			Field:   fields[0].Field(),
			Message: "failed on " + fields[0].Tag(),
			Cause:   fields,
		}
	}
	return models.ErrorValidation{Message: err.Error(), Cause: err}
}

func requireModerator(actor models.Actor) error {
	if !actor.CanModerate() {
		return models.ErrorUnauthorized{Message: "actor " + actor.ID + " cannot moderate"}
	}
	return nil
}

// isExpected reports errors that are part of normal operation and should
// not be logged as failures.
func isExpected(err error) bool {
	return errors.Is(err, models.ErrorConflict{}) ||
		errors.Is(err, models.ErrorInvalidTransition{}) ||
		errors.Is(err, models.ErrorNotFound{}) ||
		errors.Is(err, models.ErrorUnauthorized{}) ||
		errors.Is(err, models.ErrorValidation{})
}

func (d Deps) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if isExpected(err) {
		d.logger().Debug(op+" refused", fields...)
		return
	}
	d.logger().Error(op+" failed", fields...)
}
