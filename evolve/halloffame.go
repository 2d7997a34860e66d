package evolve

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/pthm-cable/flap/neural"
)

// HallEntry is a genome that ranked among the best of its generation.
type HallEntry struct {
	Generation int                 `json:"generation"`
	GenomeID   int                 `json:"genome_id"`
	Fitness    float64             `json:"fitness"`
	Score      int                 `json:"score"` // crossings the genome lived through
	Weights    neural.BrainWeights `json:"brain"`
}

// HallOfFame keeps the fittest genomes across generations, sorted by
// descending fitness.
type HallOfFame struct {
	entries []HallEntry
	maxSize int
}

// NewHallOfFame creates a hall holding at most maxSize entries.
func NewHallOfFame(maxSize int) *HallOfFame {
	return &HallOfFame{
		entries: make([]HallEntry, 0, max(maxSize, 0)),
		maxSize: max(maxSize, 0),
	}
}

// MaxSize returns the hall's capacity.
func (hof *HallOfFame) MaxSize() int {
	return hof.maxSize
}

// Len returns the number of entries.
func (hof *HallOfFame) Len() int {
	return len(hof.entries)
}

// Entries returns the entries, best first.
func (hof *HallOfFame) Entries() []HallEntry {
	return hof.entries
}

// Consider inserts entry if it beats the weakest entry of a full hall.
// Returns true if the entry was added.
func (hof *HallOfFame) Consider(entry HallEntry) bool {
	if hof.maxSize == 0 {
		return false
	}

	// Equal fitness goes after existing entries
	idx := sort.Search(len(hof.entries), func(i int) bool {
		return hof.entries[i].Fitness < entry.Fitness
	})
	if idx >= hof.maxSize {
		return false
	}

	hof.entries = append(hof.entries, HallEntry{})
	copy(hof.entries[idx+1:], hof.entries[idx:])
	hof.entries[idx] = entry

	if len(hof.entries) > hof.maxSize {
		hof.entries = hof.entries[:hof.maxSize]
	}
	return true
}

// TopFitness returns the best fitness recorded, or 0 if the hall is empty.
func (hof *HallOfFame) TopFitness() float64 {
	if len(hof.entries) == 0 {
		return 0
	}
	return hof.entries[0].Fitness
}

// Sample picks an entry by tournament selection with k=3.
// Returns nil if the hall is empty.
func (hof *HallOfFame) Sample(rng *rand.Rand) *HallEntry {
	if len(hof.entries) == 0 {
		return nil
	}

	const tournamentSize = 3
	var best *HallEntry
	for i := 0; i < tournamentSize; i++ {
		candidate := &hof.entries[rng.Intn(len(hof.entries))]
		if best == nil || candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	entry := *best
	return &entry
}

// Nets rebuilds the network of every entry, best first.
func (hof *HallOfFame) Nets() ([]*neural.FFNN, error) {
	nets := make([]*neural.FFNN, 0, len(hof.entries))
	for _, e := range hof.entries {
		nn, err := neural.UnmarshalWeights(e.Weights)
		if err != nil {
			return nil, fmt.Errorf("entry for genome %d: %w", e.GenomeID, err)
		}
		nets = append(nets, nn)
	}
	return nets, nil
}

type hallOfFameJSON struct {
	MaxSize int         `json:"max_size"`
	Entries []HallEntry `json:"entries"`
}

// MarshalJSON serializes the hall of fame.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	return json.Marshal(hallOfFameJSON{MaxSize: hof.maxSize, Entries: hof.entries})
}

// UnmarshalJSON restores a hall written by MarshalJSON.
func (hof *HallOfFame) UnmarshalJSON(data []byte) error {
	var export hallOfFameJSON
	if err := json.Unmarshal(data, &export); err != nil {
		return err
	}
	size := max(export.MaxSize, len(export.Entries))
	*hof = HallOfFame{entries: make([]HallEntry, 0, size), maxSize: size}
	for _, e := range export.Entries {
		hof.Consider(e)
	}
	return nil
}

// LoadHallOfFame reads a hall of fame JSON file.
func LoadHallOfFame(path string) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}
	hof := &HallOfFame{}
	if err := json.Unmarshal(data, hof); err != nil {
		return nil, fmt.Errorf("parsing hall of fame %s: %w", path, err)
	}
	return hof, nil
}
