// Package split partitions a labeled population into train, validation and
// test sets with stratified, seeded sampling.
package split

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/model"
)

// DefaultSeed drives the pseudo-random assignment. It exists for
// reproducible evaluation, not secrecy.
const DefaultSeed uint64 = 42

// Ratios are the target partition fractions. They must sum to 1.
type Ratios struct {
	Train      float64 `json:"train"`
	Validation float64 `json:"validation"`
	Test       float64 `json:"test"`
}

// DefaultRatios is the 70/15/15 split.
var DefaultRatios = Ratios{Train: 0.70, Validation: 0.15, Test: 0.15}

// Validate checks the ratios are non-negative and sum to 1.
func (r Ratios) Validate() error {
	if r.Train < 0 || r.Validation < 0 || r.Test < 0 {
		return eris.Errorf("split: ratios must be non-negative (got %.3f/%.3f/%.3f)", r.Train, r.Validation, r.Test)
	}
	if math.Abs(r.Train+r.Validation+r.Test-1) > 1e-9 {
		return eris.Errorf("split: ratios must sum to 1 (got %.3f/%.3f/%.3f)", r.Train, r.Validation, r.Test)
	}
	return nil
}

// Options configures Split.
type Options struct {
	Ratios Ratios
	Seed   uint64
}

// DefaultOptions returns the 70/15/15 split with the default seed.
func DefaultOptions() Options {
	return Options{Ratios: DefaultRatios, Seed: DefaultSeed}
}

// Partitions holds the three disjoint subsets. Excluded counts input rows
// dropped for a missing label.
type Partitions struct {
	Train      []model.LocationAggregate
	Validation []model.LocationAggregate
	Test       []model.LocationAggregate
	Excluded   int
}

// Sizes returns the partition sizes.
func (p *Partitions) Sizes() model.PartitionSizes {
	return model.PartitionSizes{
		Train:      len(p.Train),
		Validation: len(p.Validation),
		Test:       len(p.Test),
		Excluded:   p.Excluded,
	}
}

// Split filters rows with a missing label, then splits in two stages: a
// stratified holdout of the validation+test share, and that pool split again
// into validation and test. The same rows and seed always produce the same
// partitions.
func Split(rows []model.LocationAggregate, opts Options) (*Partitions, error) {
	if err := opts.Ratios.Validate(); err != nil {
		return nil, err
	}

	labeled := make([]model.LocationAggregate, 0, len(rows))
	for _, r := range rows {
		if r.Risk.Valid() {
			labeled = append(labeled, r)
		}
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	heldFrac := opts.Ratios.Validation + opts.Ratios.Test
	train, pool := stratifiedHoldout(labeled, heldFrac, rng)

	var val, test []model.LocationAggregate
	if heldFrac > 0 {
		val, test = stratifiedHoldout(pool, opts.Ratios.Test/heldFrac, rng)
	}

	return &Partitions{
		Train:      train,
		Validation: nonNil(val),
		Test:       nonNil(test),
		Excluded:   len(rows) - len(labeled),
	}, nil
}

// stratifiedHoldout moves round(len(rows)*frac) rows into the holdout,
// allocating the holdout across classes in proportion to class size. Both
// results keep the input order.
func stratifiedHoldout(rows []model.LocationAggregate, frac float64, rng *rand.Rand) (kept, held []model.LocationAggregate) {
	n := len(rows)
	nHeld := int(math.Floor(float64(n)*frac + 0.5))
	if n == 0 || nHeld == 0 {
		return nonNil(slices.Clone(rows)), []model.LocationAggregate{}
	}

	byClass := make(map[model.Label][]int)
	for i, r := range rows {
		byClass[r.Risk] = append(byClass[r.Risk], i)
	}
	classes := make([]model.Label, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	slices.Sort(classes)

	quota := allocate(classes, byClass, n, nHeld)

	inHoldout := make([]bool, n)
	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for _, i := range idx[:quota[c]] {
			inHoldout[i] = true
		}
	}

	kept = make([]model.LocationAggregate, 0, n-nHeld)
	held = make([]model.LocationAggregate, 0, nHeld)
	for i, r := range rows {
		if inHoldout[i] {
			held = append(held, r)
		} else {
			kept = append(kept, r)
		}
	}
	return kept, held
}

// allocate splits total across classes by the largest remainder method.
// Equal remainders go to the lower label first.
func allocate(classes []model.Label, byClass map[model.Label][]int, n, total int) map[model.Label]int {
	type share struct {
		class     model.Label
		remainder float64
	}

	quota := make(map[model.Label]int, len(classes))
	shares := make([]share, 0, len(classes))
	assigned := 0
	for _, c := range classes {
		exact := float64(total) * float64(len(byClass[c])) / float64(n)
		q := int(math.Floor(exact))
		quota[c] = q
		assigned += q
		shares = append(shares, share{class: c, remainder: exact - float64(q)})
	}

	slices.SortStableFunc(shares, func(a, b share) int {
		return cmp.Compare(b.remainder, a.remainder)
	})
	for i := 0; assigned < total; i = (i + 1) % len(shares) {
		c := shares[i].class
		if quota[c] < len(byClass[c]) {
			quota[c]++
			assigned++
		}
	}
	return quota
}

func nonNil(rows []model.LocationAggregate) []model.LocationAggregate {
	if rows == nil {
		return []model.LocationAggregate{}
	}
	return rows
}
