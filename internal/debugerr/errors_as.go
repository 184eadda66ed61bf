package debugerr

import stderrors "errors"

func errorsAs(err error, target **Error) bool {
	return stderrors.As(err, target)
}
