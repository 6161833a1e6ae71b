package service

import (
	"errors"
	"fmt"
)

// Sign-in and account errors. Every failure of the auth flow resolves to exactly one of these.
var (
	ErrInvalidFormat          = errors.New("invalid email or password format")
	ErrEmailNotRegistered     = errors.New("email is not registered")
	ErrEmailTaken             = errors.New("email already in use")
	ErrCodeNotIssued          = errors.New("verification code not issued")
	ErrCodeMismatch           = errors.New("verification code does not match")
	ErrAccountDeleted         = errors.New("account has been deleted")
	ErrOrphanedIdentity       = errors.New("identity has no user profile")
	ErrStudentRecordMissing   = errors.New("student record missing")
	ErrAmbiguousStudentRecord = errors.New("more than one active student record for email")
	ErrDeliveryFailed         = errors.New("verification code delivery failed")
	ErrStore                  = errors.New("store error")
)

// Identity store errors.
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialMismatch = errors.New("credential mismatch")
	ErrIdentityExists     = errors.New("identity already exists")

	// ErrStaffCredential reports an attempt to set a verification code as a staff credential. It
	// matches ErrEmailTaken.
	ErrStaffCredential = fmt.Errorf("%w: credential belongs to a staff account", ErrEmailTaken)
)

// StoreError carries an unclassified failure reported by the identity or profile store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStore) match any StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StoreError
	if errors.As(err, &existing) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

var authErrorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidFormat, "invalid_format"},
	{ErrEmailNotRegistered, "email_not_registered"},
	{ErrEmailTaken, "email_taken"},
	{ErrCodeNotIssued, "code_not_issued"},
	{ErrCodeMismatch, "code_mismatch"},
	{ErrAccountDeleted, "account_deleted"},
	{ErrOrphanedIdentity, "orphaned_identity"},
	{ErrStudentRecordMissing, "student_record_missing"},
	{ErrAmbiguousStudentRecord, "ambiguous_student_record"},
	{ErrDeliveryFailed, "delivery_failed"},
	{ErrStore, "store_error"},
}

// AuthErrorKind maps an auth error to its stable kind name. Unknown errors map to store_error.
func AuthErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, candidate := range authErrorKinds {
		if errors.Is(err, candidate.err) {
			return candidate.kind
		}
	}
	return "store_error"
}
