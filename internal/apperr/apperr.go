// Package apperr defines the error taxonomy of spec section 7: one
// github.com/zeebo/errs class per error kind, each carrying a stable code
// used by the HTTP surface to build the {"error":{"code",...}} body and
// pick a status code.
package apperr

import (
	"net/http"

	"github.com/zeebo/errs"
)

// Classes, one per taxonomy kind from spec section 7.
var (
	Validation = errs.Class("validation")
	NotFound   = errs.Class("not_found")
	Auth       = errs.Class("auth")
	Forbidden  = errs.Class("forbidden")
	Conflict   = errs.Class("conflict")
	Storage    = errs.Class("storage")
	Mutator    = errs.Class("mutator")
	Internal   = errs.Class("internal")
)

// code is the stable token surfaced in the error body.
type code string

const (
	CodeValidation code = "VALIDATION_ERROR"
	CodeNotFound   code = "NOT_FOUND"
	CodeAuth       code = "AUTH_ERROR"
	CodeForbidden  code = "FORBIDDEN"
	CodeConflict   code = "CONFLICT"
	CodeStorage    code = "STORAGE_ERROR"
	CodeMutator    code = "MUTATOR_ERROR"
	CodeInternal   code = "INTERNAL_ERROR"
)

// Validationf builds a ValidationError wrapping a formatted message.
func Validationf(format string, args ...interface{}) error { return Validation.New(format, args...) }

// NotFoundf builds a NotFoundError wrapping a formatted message.
func NotFoundf(format string, args ...interface{}) error { return NotFound.New(format, args...) }

// Authf builds an AuthError wrapping a formatted message.
func Authf(format string, args ...interface{}) error { return Auth.New(format, args...) }

// Forbiddenf builds a ForbiddenError wrapping a formatted message.
func Forbiddenf(format string, args ...interface{}) error { return Forbidden.New(format, args...) }

// Conflictf builds a ConflictError wrapping a formatted message.
func Conflictf(format string, args ...interface{}) error { return Conflict.New(format, args...) }

// Storagef builds a StorageError wrapping a formatted message.
func Storagef(format string, args ...interface{}) error { return Storage.New(format, args...) }

// Mutatorf builds a MutatorError wrapping a formatted message.
func Mutatorf(format string, args ...interface{}) error { return Mutator.New(format, args...) }

// Internalf builds an InternalError wrapping a formatted message.
func Internalf(format string, args ...interface{}) error { return Internal.New(format, args...) }

// WrapStorage wraps an underlying driver error as a StorageError, used by
// internal/storage after its one internal retry has been exhausted.
func WrapStorage(err error) error {
	if err == nil {
		return nil
	}
	return Storage.Wrap(err)
}

// classification maps each class to its HTTP status and wire code, per
// spec section 7's "Surface" column.
var classification = []struct {
	class  *errs.Class
	status int
	code   code
}{
	{&Validation, http.StatusBadRequest, CodeValidation},
	{&NotFound, http.StatusNotFound, CodeNotFound},
	{&Auth, http.StatusUnauthorized, CodeAuth},
	{&Forbidden, http.StatusForbidden, CodeForbidden},
	{&Conflict, http.StatusConflict, CodeConflict},
	{&Storage, http.StatusInternalServerError, CodeStorage},
	{&Mutator, http.StatusInternalServerError, CodeMutator},
	{&Internal, http.StatusInternalServerError, CodeInternal},
}

// Classify returns the HTTP status and wire code for err's outermost
// recognised apperr class, defaulting to 500/INTERNAL_ERROR for anything
// else (spec section 7 "InternalError — catch-all").
func Classify(err error) (status int, wireCode string) {
	for _, c := range classification {
		if c.class.Has(err) {
			return c.status, string(c.code)
		}
	}
	return http.StatusInternalServerError, string(CodeInternal)
}
