package evolve

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/flap/neural"
)

func entry(id int, fitness float64) HallEntry {
	return HallEntry{GenomeID: id, Fitness: fitness}
}

func TestHallOfFameSortedAndCapped(t *testing.T) {
	hof := NewHallOfFame(3)
	for i, f := range []float64{2, 9, 4, 1, 7} {
		hof.Consider(entry(i, f))
	}

	got := hof.Entries()
	want := []float64{9, 7, 4}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Fitness != want[i] {
			t.Errorf("entry %d fitness = %v, want %v", i, got[i].Fitness, want[i])
		}
	}
	if hof.TopFitness() != 9 {
		t.Errorf("TopFitness = %v, want 9", hof.TopFitness())
	}
}

func TestHallOfFameRejectsWeakWhenFull(t *testing.T) {
	hof := NewHallOfFame(2)
	hof.Consider(entry(0, 5))
	hof.Consider(entry(1, 6))

	if hof.Consider(entry(2, 5)) {
		t.Error("tie with the weakest entry admitted into a full hall")
	}
	if !hof.Consider(entry(3, 5.5)) {
		t.Error("stronger entry rejected")
	}
	if hof.Entries()[1].GenomeID != 3 {
		t.Errorf("second entry = genome %d, want 3", hof.Entries()[1].GenomeID)
	}
}

func TestHallOfFameZeroCapacity(t *testing.T) {
	hof := NewHallOfFame(0)
	if hof.Consider(entry(0, 100)) || hof.Len() != 0 {
		t.Error("zero-capacity hall accepted an entry")
	}
	if hof.Sample(rand.New(rand.NewSource(1))) != nil {
		t.Error("Sample on empty hall returned an entry")
	}
}

func TestHallOfFameSampleReturnsCopy(t *testing.T) {
	hof := NewHallOfFame(4)
	hof.Consider(entry(0, 1))
	hof.Consider(entry(1, 2))

	e := hof.Sample(rand.New(rand.NewSource(1)))
	if e == nil {
		t.Fatal("Sample returned nil")
	}
	e.Fitness = -1
	for _, kept := range hof.Entries() {
		if kept.Fitness == -1 {
			t.Error("Sample exposed the hall's storage")
		}
	}
}

func TestLoadHallOfFame(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	nn := neural.NewFFNN(rng, 3)

	hof := NewHallOfFame(2)
	hof.Consider(HallEntry{Generation: 4, GenomeID: 11, Fitness: 12.5, Score: 2, Weights: nn.MarshalWeights()})

	data, err := json.Marshal(hof)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "hall_of_fame.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadHallOfFame(path)
	if err != nil {
		t.Fatalf("LoadHallOfFame: %v", err)
	}
	if loaded.MaxSize() != 2 || loaded.Len() != 1 {
		t.Fatalf("loaded max=%d len=%d, want 2 and 1", loaded.MaxSize(), loaded.Len())
	}

	nets, err := loaded.Nets()
	if err != nil {
		t.Fatalf("Nets: %v", err)
	}
	in := [neural.NumInputs]float64{300, 40, -160}
	if got, want := nets[0].Forward(in), nn.Forward(in); got != want {
		t.Errorf("restored network output = %v, want %v", got, want)
	}
}

func TestLoadHallOfFameMissing(t *testing.T) {
	if _, err := LoadHallOfFame(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
