package httpx

import "errors"

// ErrValidation marks request parsing failures so handlers can map them to a
// 400 without inspecting the wrapped detail.
var ErrValidation = errors.New("validation failed")
