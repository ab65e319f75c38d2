package lppl

import (
	"math"
	"math/rand"
)

// objectiveFunc scores a candidate parameter vector. Implementations must
// return a large finite sentinel instead of NaN/Inf so the optimizer can
// reject the point and keep searching.
type objectiveFunc func(x []float64) float64

// badScore is the sentinel returned when the model evaluation is not finite.
// Large enough to lose every selection, small enough to stay well inside the
// float64 range under population statistics.
const badScore = 1e10

type bound struct {
	lo, hi float64
}

type deResult struct {
	x           []float64
	score       float64
	converged   bool
	generations int
}

// deOptimizer is a current-to-best/1/bin differential evolution minimizer
// over a bounded box, followed by a Nelder-Mead polish of the best member.
// The caller seeds the generator, which makes the whole search deterministic
// for identical inputs.
//
// Convergence is only reported once the best score is at or below target.
// A population that settles while still above target has stalled in a bad
// basin; the leader is retained, the rest is rescattered across the box and
// the search goes on until the generation budget runs out.
type deOptimizer struct {
	bounds        []bound
	rng           *rand.Rand
	popFactor     int
	recombination float64
	mutationLo    float64
	mutationHi    float64
	tol           float64
	atol          float64
	target        float64
}

func newDEOptimizer(bounds []bound, seed int64) *deOptimizer {
	return &deOptimizer{
		bounds:        bounds,
		rng:           rand.New(rand.NewSource(seed)),
		popFactor:     15,
		recombination: 0.7,
		mutationLo:    0.5,
		mutationHi:    1.0,
		tol:           1e-6,
		atol:          1e-6,
		target:        math.Inf(1),
	}
}

func (o *deOptimizer) minimize(obj objectiveFunc, maxGenerations int) deResult {
	dims := len(o.bounds)
	popSize := o.popFactor * dims

	pop := make([][]float64, popSize)
	scores := make([]float64, popSize)
	for i := range pop {
		x := make([]float64, dims)
		for j, b := range o.bounds {
			x[j] = b.lo + o.rng.Float64()*(b.hi-b.lo)
		}
		pop[i] = x
		scores[i] = obj(x)
	}

	best := 0
	for i := 1; i < popSize; i++ {
		if scores[i] < scores[best] {
			best = i
		}
	}

	res := deResult{}
	trial := make([]float64, dims)
	for gen := 0; gen < maxGenerations; gen++ {
		res.generations = gen + 1
		// Dithered mutation factor, redrawn each generation.
		f := o.mutationLo + o.rng.Float64()*(o.mutationHi-o.mutationLo)

		for i := 0; i < popSize; i++ {
			r1, r2 := o.pickDistinct(popSize, i, best)
			forced := o.rng.Intn(dims)
			for j := 0; j < dims; j++ {
				if j == forced || o.rng.Float64() < o.recombination {
					trial[j] = pop[i][j] + f*(pop[best][j]-pop[i][j]) + f*(pop[r1][j]-pop[r2][j])
				} else {
					trial[j] = pop[i][j]
				}
			}
			o.clamp(trial)

			if s := obj(trial); s <= scores[i] {
				copy(pop[i], trial)
				scores[i] = s
				if s < scores[best] {
					best = i
				}
			}
		}

		if o.settled(scores) {
			if scores[best] > o.target {
				// Stalled above target; give the leader a local descent
				// before deciding whether this basin is good enough.
				px, ps := nelderMead(obj, o.bounds, pop[best], 100*dims)
				if ps < scores[best] {
					copy(pop[best], px)
					scores[best] = ps
				}
			}
			if scores[best] <= o.target {
				res.converged = true
				break
			}
			best = o.scatter(obj, pop, scores, best)
		}
	}

	res.x = append([]float64(nil), pop[best]...)
	res.score = scores[best]

	// Local polish of the global winner.
	px, ps := nelderMead(obj, o.bounds, res.x, 400*dims)
	if ps < res.score {
		res.x = px
		res.score = ps
	}
	return res
}

// settled reports whether the population energies have collapsed:
// std <= atol + tol*|mean|, the usual stopping rule for DE.
func (o *deOptimizer) settled(scores []float64) bool {
	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))

	return math.Sqrt(variance) <= o.atol+o.tol*math.Abs(mean)
}

// scatter reinitializes every member except keep uniformly across the box,
// restoring the diversity a stalled population has lost. Returns the index
// of the best member afterwards.
func (o *deOptimizer) scatter(obj objectiveFunc, pop [][]float64, scores []float64, keep int) int {
	best := keep
	for i := range pop {
		if i == keep {
			continue
		}
		for j, b := range o.bounds {
			pop[i][j] = b.lo + o.rng.Float64()*(b.hi-b.lo)
		}
		scores[i] = obj(pop[i])
		if scores[i] < scores[best] {
			best = i
		}
	}
	return best
}

func (o *deOptimizer) pickDistinct(popSize, i, best int) (int, int) {
	r1 := o.rng.Intn(popSize)
	for r1 == i || r1 == best {
		r1 = o.rng.Intn(popSize)
	}
	r2 := o.rng.Intn(popSize)
	for r2 == i || r2 == best || r2 == r1 {
		r2 = o.rng.Intn(popSize)
	}
	return r1, r2
}

func (o *deOptimizer) clamp(x []float64) {
	for j, b := range o.bounds {
		if x[j] < b.lo {
			x[j] = b.lo
		} else if x[j] > b.hi {
			x[j] = b.hi
		}
	}
}

// nelderMead runs a bounded downhill-simplex descent from x0 and returns the
// best vertex found. Vertices are clamped to the box, which is sufficient
// here: the polish only needs to slide the DE winner into the local minimum.
func nelderMead(obj objectiveFunc, bounds []bound, x0 []float64, maxEvals int) ([]float64, float64) {
	const (
		alpha = 1.0 // reflection
		gamma = 2.0 // expansion
		rho   = 0.5 // contraction
		sigma = 0.5 // shrink
		ftol  = 1e-10
	)
	dims := len(x0)

	clampTo := func(x []float64) {
		for j, b := range bounds {
			if x[j] < b.lo {
				x[j] = b.lo
			} else if x[j] > b.hi {
				x[j] = b.hi
			}
		}
	}

	// Initial simplex: x0 plus one vertex per dimension, displaced by 5% of
	// the bound span.
	simplex := make([][]float64, dims+1)
	scores := make([]float64, dims+1)
	evals := 0
	for i := range simplex {
		v := append([]float64(nil), x0...)
		if i > 0 {
			v[i-1] += 0.05 * (bounds[i-1].hi - bounds[i-1].lo)
		}
		clampTo(v)
		simplex[i] = v
		scores[i] = obj(v)
		evals++
	}

	order := func() {
		for i := 1; i < len(simplex); i++ {
			for j := i; j > 0 && scores[j] < scores[j-1]; j-- {
				scores[j], scores[j-1] = scores[j-1], scores[j]
				simplex[j], simplex[j-1] = simplex[j-1], simplex[j]
			}
		}
	}

	centroid := make([]float64, dims)
	point := func(scale float64) ([]float64, float64) {
		x := make([]float64, dims)
		worst := simplex[dims]
		for j := 0; j < dims; j++ {
			x[j] = centroid[j] + scale*(centroid[j]-worst[j])
		}
		clampTo(x)
		return x, obj(x)
	}

	for evals < maxEvals {
		order()
		if math.Abs(scores[dims]-scores[0]) <= ftol {
			break
		}

		for j := 0; j < dims; j++ {
			centroid[j] = 0
			for i := 0; i < dims; i++ {
				centroid[j] += simplex[i][j]
			}
			centroid[j] /= float64(dims)
		}

		refl, reflScore := point(alpha)
		evals++
		switch {
		case reflScore < scores[0]:
			exp, expScore := point(alpha * gamma)
			evals++
			if expScore < reflScore {
				simplex[dims], scores[dims] = exp, expScore
			} else {
				simplex[dims], scores[dims] = refl, reflScore
			}
		case reflScore < scores[dims-1]:
			simplex[dims], scores[dims] = refl, reflScore
		default:
			contr, contrScore := point(-rho)
			evals++
			if contrScore < scores[dims] {
				simplex[dims], scores[dims] = contr, contrScore
			} else {
				// Shrink toward the best vertex.
				for i := 1; i <= dims; i++ {
					for j := 0; j < dims; j++ {
						simplex[i][j] = simplex[0][j] + sigma*(simplex[i][j]-simplex[0][j])
					}
					clampTo(simplex[i])
					scores[i] = obj(simplex[i])
					evals++
				}
			}
		}
	}

	order()
	return simplex[0], scores[0]
}
