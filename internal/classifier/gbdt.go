package classifier

import (
	"bytes"
	"cmp"
	"encoding/gob"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/rotisserie/eris"
)

// KindGBDT identifies the gradient-boosted tree classifier.
const KindGBDT = "gbdt"

func init() {
	Register(KindGBDT, func() Classifier { return NewGBDT(DefaultParams()) })
}

// Node is one node of a regression tree. Leaf values already include the
// learning rate.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Leaf      bool
}

// Tree is a regression tree stored as a flat node slice rooted at index 0.
type Tree struct {
	Nodes []Node
}

// goesLeft routes a value. NaN goes left.
func goesLeft(v, threshold float64) bool {
	return !(v >= threshold)
}

func (t Tree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if goesLeft(row[n.Feature], n.Threshold) {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GBDT is a binary gradient-boosted decision tree classifier with logistic
// loss. Splits use second-order gain with L2 leaf regularization, trees are
// grown level by level to MaxDepth, and positive rows can be up-weighted to
// counter class imbalance.
type GBDT struct {
	params    Params
	base      float64
	posWeight float64
	width     int
	trees     []Tree
	fitted    bool
}

// NewGBDT returns an unfitted classifier with the given parameters.
func NewGBDT(p Params) *GBDT {
	return &GBDT{params: p}
}

// Kind implements Classifier.
func (m *GBDT) Kind() string { return KindGBDT }

// Fitted implements Classifier.
func (m *GBDT) Fitted() bool { return m.fitted }

// Params returns the hyperparameters.
func (m *GBDT) Params() Params { return m.params }

// PosWeight returns the positive-class weight used during the last fit.
func (m *GBDT) PosWeight() float64 { return m.posWeight }

// NumTrees returns the number of boosted trees.
func (m *GBDT) NumTrees() int { return len(m.trees) }

type gradPair struct {
	g, h float64
}

type candidate struct {
	valid     bool
	gain      float64
	feature   int
	threshold float64
}

type scan struct {
	g, h float64
	last float64
	seen bool
}

// Fit trains the ensemble from scratch. On error the classifier is left
// exactly as it was.
func (m *GBDT) Fit(x [][]float64, y []int) error {
	width, err := validateTraining(x, y)
	if err != nil {
		return err
	}
	p := m.params
	if err := p.Validate(); err != nil {
		return err
	}

	n := len(x)
	positives := 0
	for _, v := range y {
		positives += v
	}
	posWeight := p.ScalePosWeight
	if posWeight == 0 {
		posWeight = 1
		if positives > 0 && positives < n {
			posWeight = float64(n-positives) / float64(positives)
		}
	}

	weights := make([]float64, n)
	var sumW, sumWY float64
	for i, v := range y {
		weights[i] = 1
		if v == 1 {
			weights[i] = posWeight
		}
		sumW += weights[i]
		sumWY += weights[i] * float64(v)
	}
	prior := math.Min(math.Max(sumWY/sumW, 1e-6), 1-1e-6)
	base := math.Log(prior / (1 - prior))

	order := presort(x, width)
	margin := make([]float64, n)
	for i := range margin {
		margin[i] = base
	}
	grad := make([]gradPair, n)
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))

	trees := make([]Tree, 0, p.NEstimators)
	for range p.NEstimators {
		for i := range x {
			prob := sigmoid(margin[i])
			grad[i] = gradPair{
				g: (prob - float64(y[i])) * weights[i],
				h: math.Max(prob*(1-prob), 1e-16) * weights[i],
			}
		}
		tree := growTree(x, width, order, grad, sampleRows(n, p.Subsample, rng), p)
		for i, row := range x {
			margin[i] += tree.predict(row)
		}
		trees = append(trees, tree)
	}

	m.base = base
	m.posWeight = posWeight
	m.width = width
	m.trees = trees
	m.fitted = true
	return nil
}

// presort returns, per feature, row indices ordered by feature value.
func presort(x [][]float64, width int) [][]int {
	order := make([][]int, width)
	for f := range width {
		idx := make([]int, len(x))
		for i := range idx {
			idx[i] = i
		}
		slices.SortStableFunc(idx, func(a, b int) int {
			return cmp.Compare(x[a][f], x[b][f])
		})
		order[f] = idx
	}
	return order
}

func sampleRows(n int, frac float64, rng *rand.Rand) []bool {
	in := make([]bool, n)
	if frac >= 1 {
		for i := range in {
			in[i] = true
		}
		return in
	}
	k := max(1, int(math.Round(frac*float64(n))))
	for _, i := range rng.Perm(n)[:k] {
		in[i] = true
	}
	return in
}

// growTree builds one regression tree on the sampled rows, one depth level
// at a time. Each level makes a single pass over every presorted feature and
// scores the split candidates of all open nodes together.
func growTree(x [][]float64, width int, order [][]int, grad []gradPair, sampled []bool, p Params) Tree {
	nodeOf := make([]int, len(x))
	var root gradPair
	for i := range x {
		if !sampled[i] {
			nodeOf[i] = -1
			continue
		}
		root.g += grad[i].g
		root.h += grad[i].h
	}

	nodes := []Node{{}}
	sums := []gradPair{root}
	open := []int{0}

	leaf := func(s gradPair) Node {
		return Node{Leaf: true, Value: -s.g / (s.h + p.Lambda) * p.LearningRate}
	}

	for depth := 0; depth < p.MaxDepth && len(open) > 0; depth++ {
		cands := make([]candidate, len(nodes))
		for f := range width {
			scans := make([]scan, len(nodes))
			for _, i := range order[f] {
				nd := nodeOf[i]
				if nd < 0 {
					continue
				}
				v := x[i][f]
				s := &scans[nd]
				if s.seen && v != s.last && !math.IsNaN(v) && !math.IsNaN(s.last) {
					gl, hl := s.g, s.h
					gr, hr := sums[nd].g-gl, sums[nd].h-hl
					if hl >= p.MinChildWeight && hr >= p.MinChildWeight {
						gain := splitGain(gl, hl, gr, hr, p.Lambda) - p.Gamma
						if gain > cands[nd].gain {
							cands[nd] = candidate{valid: true, gain: gain, feature: f, threshold: midpoint(s.last, v)}
						}
					}
				}
				s.g += grad[i].g
				s.h += grad[i].h
				s.last = v
				s.seen = true
			}
		}

		var next []int
		for _, nd := range open {
			c := cands[nd]
			if !c.valid {
				nodes[nd] = leaf(sums[nd])
				continue
			}
			left := len(nodes)
			nodes = append(nodes, Node{}, Node{})
			sums = append(sums, gradPair{}, gradPair{})
			nodes[nd] = Node{Feature: c.feature, Threshold: c.threshold, Left: left, Right: left + 1}
			next = append(next, left, left+1)
		}

		for i, nd := range nodeOf {
			if nd < 0 {
				continue
			}
			node := nodes[nd]
			if node.Leaf {
				nodeOf[i] = -1
				continue
			}
			child := node.Right
			if goesLeft(x[i][node.Feature], node.Threshold) {
				child = node.Left
			}
			nodeOf[i] = child
			sums[child].g += grad[i].g
			sums[child].h += grad[i].h
		}
		open = next
	}

	for _, nd := range open {
		nodes[nd] = leaf(sums[nd])
	}
	return Tree{Nodes: nodes}
}

func splitGain(gl, hl, gr, hr, lambda float64) float64 {
	g, h := gl+gr, hl+hr
	return 0.5 * (gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - g*g/(h+lambda))
}

// midpoint returns a threshold t with a < t <= b.
func midpoint(a, b float64) float64 {
	t := a + (b-a)/2
	if t <= a {
		return b
	}
	return t
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func (m *GBDT) mustBeReady(x [][]float64) {
	if !m.fitted {
		panic("classifier: gbdt used before Fit")
	}
	for i, row := range x {
		if len(row) != m.width {
			panic(eris.Errorf("classifier: row %d has %d features, want %d", i, len(row), m.width).Error())
		}
	}
}

func (m *GBDT) margin(row []float64) float64 {
	z := m.base
	for _, t := range m.trees {
		z += t.predict(row)
	}
	return z
}

// PredictProba returns the positive-class probability per row.
func (m *GBDT) PredictProba(x [][]float64) []float64 {
	m.mustBeReady(x)
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = sigmoid(m.margin(row))
	}
	return out
}

// Predict returns 1 where the positive probability reaches the threshold.
func (m *GBDT) Predict(x [][]float64) []int {
	probs := m.PredictProba(x)
	out := make([]int, len(probs))
	for i, pr := range probs {
		if pr >= m.params.Threshold {
			out[i] = 1
		}
	}
	return out
}

type gbdtState struct {
	Params    Params
	Base      float64
	PosWeight float64
	Width     int
	Trees     []Tree
}

// MarshalBinary encodes the fitted ensemble.
func (m *GBDT) MarshalBinary() ([]byte, error) {
	if !m.fitted {
		return nil, eris.New("classifier: cannot marshal an unfitted gbdt")
	}
	var buf bytes.Buffer
	state := gbdtState{Params: m.params, Base: m.base, PosWeight: m.posWeight, Width: m.width, Trees: m.trees}
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, eris.Wrap(err, "classifier: encode gbdt")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a fitted ensemble. The receiver is only modified
// when the encoded state is complete and consistent.
func (m *GBDT) UnmarshalBinary(data []byte) error {
	var state gbdtState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return eris.Wrap(err, "classifier: decode gbdt")
	}
	if err := state.validate(); err != nil {
		return err
	}
	m.params = state.Params
	m.base = state.Base
	m.posWeight = state.PosWeight
	m.width = state.Width
	m.trees = state.Trees
	m.fitted = true
	return nil
}

func (s gbdtState) validate() error {
	if err := s.Params.Validate(); err != nil {
		return eris.Wrap(err, "classifier: decoded gbdt")
	}
	if s.Width <= 0 {
		return eris.Errorf("classifier: decoded gbdt has width %d", s.Width)
	}
	if len(s.Trees) == 0 {
		return eris.New("classifier: decoded gbdt has no trees")
	}
	if math.IsNaN(s.Base) || math.IsInf(s.Base, 0) {
		return eris.New("classifier: decoded gbdt has a non-finite base score")
	}
	for ti, t := range s.Trees {
		if len(t.Nodes) == 0 {
			return eris.Errorf("classifier: decoded tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf {
				if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
					return eris.Errorf("classifier: tree %d node %d has a non-finite value", ti, ni)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= s.Width {
				return eris.Errorf("classifier: tree %d node %d splits on feature %d", ti, ni, n.Feature)
			}
			// Children always follow their parent, which rules out cycles.
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return eris.Errorf("classifier: tree %d node %d has invalid children", ti, ni)
			}
		}
	}
	return nil
}
