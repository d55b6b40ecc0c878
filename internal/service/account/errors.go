package account

import "errors"

// ErrAddressIDRequired — не передан идентификатор адреса.
var ErrAddressIDRequired = errors.New("address id is required")
