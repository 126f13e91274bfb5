package onnx

import "fmt"

type threadSetter interface {
	SetIntraOpNumThreads(n int) error
}

// setThreads applies the intra-op thread count; n <= 0 keeps the runtime default
func setThreads(opts threadSetter, n int) error {
	if n <= 0 {
		return nil
	}
	if err := opts.SetIntraOpNumThreads(n); err != nil {
		return fmt.Errorf("session opts: intra-op threads %d: %w", n, err)
	}
	return nil
}

// inputShape picks the tensor shape for n values. A fully static model input
// shape holding exactly n values wins; a dynamic leading batch dimension is
// set to 1. Otherwise the preprocessed shape is used as is.
func inputShape(modelDims, preprocessed []int64, n int) []int64 {
	if len(modelDims) > 0 {
		dims := append([]int64(nil), modelDims...)
		if dims[0] < 1 {
			dims[0] = 1
		}
		size := int64(1)
		static := true
		for _, d := range dims {
			if d < 1 {
				static = false
				break
			}
			size *= d
		}
		if static && size == int64(n) {
			return dims
		}
	}
	if len(preprocessed) > 0 {
		return preprocessed
	}
	return []int64{1, int64(n)}
}

// classCount is the number of scores per image for an output shape, or 0 when
// any non-batch dimension is dynamic.
func classCount(dims []int64) int {
	switch len(dims) {
	case 0:
		return 0
	case 1:
		if dims[0] < 1 {
			return 0
		}
		return int(dims[0])
	}
	count := int64(1)
	for _, d := range dims[1:] {
		if d < 1 {
			return 0
		}
		count *= d
	}
	return int(count)
}
