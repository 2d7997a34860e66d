// Package evolve is a generational neuroevolution loop over neural.FFNN
// policies. It drives game generations and reads their fitness back.
package evolve

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/pthm-cable/flap/components"
	"github.com/pthm-cable/flap/config"
	"github.com/pthm-cable/flap/game"
	"github.com/pthm-cable/flap/neural"
)

// ErrFitnessMismatch is returned when a result does not cover the population.
var ErrFitnessMismatch = errors.New("fitness count does not match population")

// Genome is one member of the population.
type Genome struct {
	ID      int
	Net     *neural.FFNN
	Fitness float64
	Crossed int // crossings lived through in the last evaluation
}

// Population holds the genomes of the current generation.
type Population struct {
	cfg     config.EvolutionConfig
	hidden  int
	rng     *rand.Rand
	genomes []Genome
	nextID  int
	hof     *HallOfFame

	// Context of the last evaluated generation
	gen game.Generation
}

// NewPopulation creates size random genomes.
func NewPopulation(cfg *config.Config, size int, rng *rand.Rand) (*Population, error) {
	if size < 1 {
		return nil, fmt.Errorf("creating population of %d: %w", size, game.ErrInvalidPopulation)
	}

	p := &Population{
		cfg:     cfg.Evolution,
		hidden:  cfg.Neural.Hidden,
		rng:     rng,
		genomes: make([]Genome, size),
		hof:     NewHallOfFame(cfg.Evolution.HallOfFame),
	}
	for i := range p.genomes {
		p.genomes[i] = Genome{ID: p.newID(), Net: neural.NewFFNN(rng, p.hidden)}
	}
	return p, nil
}

// Seed replaces the first genomes with copies of nets, e.g. from a saved
// hall of fame. Extra nets are ignored.
func (p *Population) Seed(nets []*neural.FFNN) {
	for i, nn := range nets {
		if i >= len(p.genomes) {
			break
		}
		p.genomes[i].Net = nn.Clone()
	}
}

func (p *Population) newID() int {
	id := p.nextID
	p.nextID++
	return id
}

// Size returns the number of genomes.
func (p *Population) Size() int {
	return len(p.genomes)
}

// Genomes returns the current genomes. Index i controls agent i.
func (p *Population) Genomes() []Genome {
	return p.genomes
}

// Generation returns the context of the last evaluated generation.
func (p *Population) Generation() game.Generation {
	return p.gen
}

// HallOfFame returns the best genomes seen so far.
func (p *Population) HallOfFame() *HallOfFame {
	return p.hof
}

// Factory returns a policy factory mapping agent IDs to genomes.
func (p *Population) Factory() game.PolicyFactory {
	genomes := p.genomes
	return func(id int) components.Policy {
		if id < 0 || id >= len(genomes) {
			return nil
		}
		return genomes[id].Net
	}
}

// Evaluate records the fitness and crossings of a finished generation and
// offers the generation's best genomes to the hall of fame. A result without
// per-agent crossings records zero.
func (p *Population) Evaluate(gen game.Generation, res game.Result) error {
	if len(res.Fitness) != len(p.genomes) {
		return fmt.Errorf("%w: got %d values for %d genomes", ErrFitnessMismatch, len(res.Fitness), len(p.genomes))
	}
	if res.Crossed != nil && len(res.Crossed) != len(p.genomes) {
		return fmt.Errorf("%w: got %d crossing counts for %d genomes", ErrFitnessMismatch, len(res.Crossed), len(p.genomes))
	}
	for i := range p.genomes {
		p.genomes[i].Fitness = res.Fitness[i]
		p.genomes[i].Crossed = 0
		if res.Crossed != nil {
			p.genomes[i].Crossed = res.Crossed[i]
		}
	}
	p.gen = gen

	for _, g := range p.ranked()[:min(p.hof.MaxSize(), len(p.genomes))] {
		p.hof.Consider(HallEntry{
			Generation: gen.Number,
			GenomeID:   g.ID,
			Fitness:    g.Fitness,
			Score:      g.Crossed,
			Weights:    g.Net.MarshalWeights(),
		})
	}
	return nil
}

// ranked returns the genomes sorted by descending fitness. Ties keep
// population order.
func (p *Population) ranked() []Genome {
	ranked := make([]Genome, len(p.genomes))
	copy(ranked, p.genomes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}

// Best returns the fittest genome of the last evaluation.
func (p *Population) Best() Genome {
	return p.ranked()[0]
}

// Next replaces the population with the next generation: elites are copied
// unchanged, the rest are tournament-selected, optionally crossed over, and
// sparsely mutated.
func (p *Population) Next() {
	ranked := p.ranked()
	n := len(ranked)
	next := make([]Genome, 0, n)

	for i := 0; i < p.cfg.Elite && i < n; i++ {
		next = append(next, Genome{ID: ranked[i].ID, Net: ranked[i].Net.Clone()})
	}

	for len(next) < n {
		parent := p.tournament(ranked)
		var child *neural.FFNN
		if p.rng.Float64() < p.cfg.Crossover {
			child = crossover(p.rng, parent.Net, p.tournament(ranked).Net)
		} else {
			child = parent.Net.Clone()
		}
		child.MutateSparse(p.rng, p.cfg.MutationRate, p.cfg.Sigma, p.cfg.BigRate, p.cfg.BigSigma)
		next = append(next, Genome{ID: p.newID(), Net: child})
	}

	p.genomes = next
}

// tournament picks the fittest of Tournament uniformly drawn genomes.
func (p *Population) tournament(ranked []Genome) Genome {
	k := max(p.cfg.Tournament, 1)
	best := ranked[p.rng.Intn(len(ranked))]
	for i := 1; i < k; i++ {
		candidate := ranked[p.rng.Intn(len(ranked))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best
}

// crossover takes each parameter from a or b with equal probability.
// Both parents must have the same hidden size.
func crossover(rng *rand.Rand, a, b *neural.FFNN) *neural.FFNN {
	if a.Hidden != b.Hidden {
		return a.Clone()
	}
	wa, wb := a.Flat(), b.Flat()
	for i := range wa {
		if rng.Intn(2) == 1 {
			wa[i] = wb[i]
		}
	}
	child, err := neural.FromFlat(a.Hidden, wa)
	if err != nil {
		return a.Clone()
	}
	return child
}
