package types

import "errors"

var (
	ErrEmptySample           = errors.New("empty document sample")
	ErrNameRequired          = errors.New("mapping set name is required")
	ErrDuplicateName         = errors.New("mapping set name already exists")
	ErrDuplicateOriginal     = errors.New("duplicate original field in mapping set")
	ErrDuplicateTarget       = errors.New("multiple original fields share a target field")
	ErrNotFound              = errors.New("mapping set not found")
	ErrActiveMappingDelete   = errors.New("mapping set is active, deactivate before delete")
	ErrMappingNoLongerActive = errors.New("mapping set is no longer active")
	ErrApplyInProgress       = errors.New("apply already running for mapping set")
	ErrStoreUnavailable      = errors.New("listing store unavailable")
)
