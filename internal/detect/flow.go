package detect

import (
	"gocv.io/x/gocv"
)

// Flow is a dense per-pixel velocity field: U[y*w+x], V[y*w+x] are the
// horizontal/vertical components at pixel (x,y).
type Flow struct {
	U, V []float32
	W, H int
}

// computeFlow runs Farneback dense optical flow between prevGray and
// curGray with the exact parameters named in SPEC_FULL.md section 4.5.
// This is the one piece of detector math not reasonably hand-rolled —
// a correct coarse-to-fine polynomial-expansion flow estimator is real
// numerical machinery, so it is delegated to gocv/OpenCV rather than
// reimplemented.
func computeFlow(prevGray, curGray []byte, w, h int) (Flow, error) {
	prevMat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, prevGray)
	if err != nil {
		return Flow{}, err
	}
	defer prevMat.Close()
	curMat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, curGray)
	if err != nil {
		return Flow{}, err
	}
	defer curMat.Close()

	flowMat := gocv.NewMat()
	defer flowMat.Close()

	gocv.CalcOpticalFlowFarneback(prevMat, curMat, &flowMat,
		0.5, // pyr_scale
		3,   // levels
		15,  // winsize
		3,   // iterations
		5,   // poly_n
		1.2, // poly_sigma
		0,   // flags
	)

	u := make([]float32, w*h)
	v := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			vec := flowMat.GetVecfAt(y, x)
			idx := y*w + x
			u[idx] = vec[0]
			v[idx] = vec[1]
		}
	}
	return Flow{U: u, V: v, W: w, H: h}, nil
}

// flowCache memoizes the single flow computation shared by the shake
// and reposition detectors within one frame: the pipeline steps shake
// then reposition (or vice versa) against the same (prev, cur) pair, and
// the second call must not recompute Farneback flow.
type flowCache struct {
	ts       float64
	hasFlow  bool
	flow     Flow
	err      error
}

// newFlowCache returns an empty cache.
func newFlowCache() *flowCache { return &flowCache{} }

// get returns the flow for (prev, cur), computing it on the first call
// for a given cur timestamp and returning the memoized result on the
// second. Returns (Flow{}, false, nil) when prev is nil (first frame).
func (c *flowCache) get(curTs float64, curGray, prevGray []byte, w, h int) (Flow, bool, error) {
	if prevGray == nil {
		return Flow{}, false, nil
	}
	if c.hasFlow && c.ts == curTs {
		return c.flow, true, c.err
	}
	flow, err := computeFlow(prevGray, curGray, w, h)
	c.ts = curTs
	c.hasFlow = true
	c.flow = flow
	c.err = err
	return flow, true, err
}
