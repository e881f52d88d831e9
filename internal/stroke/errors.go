package stroke

import "codeberg.org/mutker/ergmon/internal/errors"

const (
	ErrInvalidSample = errors.ErrorCode("stroke_invalid_sample")
)
