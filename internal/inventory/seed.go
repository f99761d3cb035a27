package inventory

import (
	"fmt"
	"io"
	"os"

	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document listing inventory units.
type SeedFile struct {
	Units []SeedUnit `yaml:"units"`
}

// SeedUnit is one unit in a seed file. Weight and score are decimal strings.
type SeedUnit struct {
	ID           string `yaml:"id"`
	Label        string `yaml:"label"`
	Weight       string `yaml:"weight"`
	GroupingID   string `yaml:"grouping_id"`
	GroupingName string `yaml:"grouping_name"`
	Grade        string `yaml:"grade"`
	Score        string `yaml:"score"`
	Approved     bool   `yaml:"approved"`
}

// LoadSeed reads a seed file from disk into the repository.
// Returns the number of units loaded.
func (r *Repository) LoadSeed(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open inventory seed: %w", err)
	}
	defer f.Close()
	return r.Load(f)
}

// Load reads a seed document into the repository.
func (r *Repository) Load(reader io.Reader) (int, error) {
	var seed SeedFile
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	if err := decoder.Decode(&seed); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to parse inventory seed: %w", err)
	}

	for i, u := range seed.Units {
		rec, err := u.record()
		if err != nil {
			return i, fmt.Errorf("units[%d]: %w", i, err)
		}
		if err := r.Add(rec); err != nil {
			return i, fmt.Errorf("units[%d]: %w", i, err)
		}
	}
	return len(seed.Units), nil
}

func (u SeedUnit) record() (Record, error) {
	weight := decimal.Zero
	if u.Weight != "" {
		w, err := decimal.NewFromString(u.Weight)
		if err != nil {
			return Record{}, fmt.Errorf("invalid weight %q: %w", u.Weight, err)
		}
		if w.IsNegative() {
			return Record{}, fmt.Errorf("negative weight %s", u.Weight)
		}
		weight = w
	}

	score := decimal.Zero
	if u.Score != "" {
		s, err := decimal.NewFromString(u.Score)
		if err != nil {
			return Record{}, fmt.Errorf("invalid score %q: %w", u.Score, err)
		}
		score = s
	}

	return Record{
		Unit:     fulfillment.Unit{ID: u.ID, Label: u.Label, Weight: weight},
		Grouping: fulfillment.Grouping{ID: u.GroupingID, Name: u.GroupingName},
		Quality:  fulfillment.QualityResult{Grade: u.Grade, Score: score, Approved: u.Approved},
	}, nil
}
