package construct

import "errors"

var ErrNilType = errors.New("nil type")
