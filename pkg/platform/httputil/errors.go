package httputil

import (
	"errors"

	dErrors "certledger/pkg/domain-errors"
)

func asDomain(err error, target **dErrors.Error) bool {
	return errors.As(err, target)
}
