package pipeline

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// cmpIgnoreLossNoise drops the fields of LossEvent that depend on texture
// statistics rather than on the state machine.
func cmpIgnoreLossNoise() cmp.Option {
	return cmpopts.IgnoreFields(LossEvent{}, "Quality", "Timestamp")
}
