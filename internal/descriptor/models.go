package descriptor

import (
	"fmt"
	"strings"
)

// modelDims lists the descriptor length of the models the face service is
// known to run.
var modelDims = map[string]int{
	"buffalo_l":  512,
	"buffalo_m":  512,
	"buffalo_s":  512,
	"buffalo_sc": 512,
	"antelopev2": 512,
	"dlib":       128,
}

// ModelDim returns the descriptor length produced by model.
func ModelDim(model string) (int, bool) {
	dim, ok := modelDims[strings.ToLower(strings.TrimSpace(model))]
	return dim, ok
}

// CheckModelDim fails when model is known to produce descriptors of a length
// other than dim. Unknown models pass; the extractor still rejects each
// descriptor of the wrong length.
func CheckModelDim(model string, dim int) error {
	want, ok := ModelDim(model)
	if !ok || want == dim {
		return nil
	}
	return fmt.Errorf("%w: model %s produces %d values but DESCRIPTOR_DIM is %d", ErrUnexpectedDimension, model, want, dim)
}
