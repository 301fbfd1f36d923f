// Package service implements the eligibility and enrollment engine: campaign
// scheduling, enrollment transitions, donation completion and questionnaire
// evaluation. Every mutation runs inside one repository.Store transaction.
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kkkkikiki/blooddrive/internal/apperr"
	"github.com/kkkkikiki/blooddrive/internal/events"
	"github.com/kkkkikiki/blooddrive/internal/metrics"
	"github.com/kkkkikiki/blooddrive/internal/model"
	"github.com/kkkkikiki/blooddrive/internal/repository"
)

// Option configures a service
type Option func(*options)

type options struct {
	logger    *zap.Logger
	now       func() time.Time
	location  *time.Location
	publisher events.Publisher
}

func defaultOptions() options {
	return options{
		logger:    zap.NewNop(),
		now:       time.Now,
		location:  time.UTC,
		publisher: events.NopPublisher{},
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocation sets the zone that decides what "today" is
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithPublisher sets the donation event publisher
func WithPublisher(p events.Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// today is the current calendar date in the configured zone.
func (o options) today() time.Time {
	return model.DateOf(o.now().In(o.location))
}

var validate = validator.New()

// validateInput runs struct tag validation and reports the first failure.
func validateInput(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.New(apperr.CodeInvalidInput, "%s is invalid (%s)", fieldName(fe), constraint(fe))
	}
	return apperr.Wrap(err, apperr.CodeInvalidInput, "invalid input")
}

func fieldName(fe validator.FieldError) string {
	return strings.ToLower(fe.Field())
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
}

// lookupErr maps a store read failure: missing rows become NotFound for what,
// everything else is an infrastructure failure of op.
func lookupErr(err error, what, id, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(err, apperr.CodeNotFound, "%s %s not found", what, id)
	}
	return apperr.Infrastructure(err, op)
}

// txErr passes business errors raised inside a transaction through and wraps
// begin/commit failures.
func txErr(err error, op string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Infrastructure(err, op)
}

// observe records the duration of op. Use with a named error result:
//
//	defer observe("enroll", time.Now(), &err)
func observe(op string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = string(apperr.CodeOf(*err))
	}
	metrics.RecordOperationDuration(op, status, time.Since(start).Seconds())
}

// logOutcome logs rejections at Info and infrastructure failures at Error.
func logOutcome(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	fields = append(fields, zap.String("code", string(apperr.CodeOf(err))), zap.Error(err))
	if apperr.KindOf(err) == apperr.KindInfrastructure {
		log.Error(msg, fields...)
		return
	}
	log.Info(msg, fields...)
}
