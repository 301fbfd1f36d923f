package api

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"

	"github.com/kkkkikiki/blooddrive/internal/apperr"
)

// ErrorCodeHeader carries the apperr code of a failed call.
const ErrorCodeHeader = "X-Error-Code"

var kindCodes = map[apperr.Kind]connect.Code{
	apperr.KindValidation:     connect.CodeInvalidArgument,
	apperr.KindNotFound:       connect.CodeNotFound,
	apperr.KindConflict:       connect.CodeAlreadyExists,
	apperr.KindForbidden:      connect.CodePermissionDenied,
	apperr.KindCapacity:       connect.CodeResourceExhausted,
	apperr.KindInvalidState:   connect.CodeFailedPrecondition,
	apperr.KindInfrastructure: connect.CodeUnavailable,
}

// toConnectError maps an engine error to a connect error. Infrastructure
// failures keep their cause out of the message returned to the caller.
func toConnectError(err error) *connect.Error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	kind := apperr.KindOf(err)
	code := apperr.CodeOf(err)

	msg := err
	var appErr *apperr.Error
	if kind == apperr.KindInfrastructure {
		msg = errors.New("service temporarily unavailable")
	} else if errors.As(err, &appErr) {
		msg = errors.New(appErr.Message)
	}

	ce := connect.NewError(kindCodes[kind], msg)
	ce.Meta().Set(ErrorCodeHeader, string(code))
	return ce
}

// invalidArgument reports a request that failed decoding or tag validation.
func invalidArgument(err error) *connect.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		err = fmt.Errorf("%s is invalid (%s)", fe.Namespace(), fe.Tag())
	}
	ce := connect.NewError(connect.CodeInvalidArgument, err)
	ce.Meta().Set(ErrorCodeHeader, string(apperr.CodeInvalidInput))
	return ce
}
