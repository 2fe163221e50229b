// Package branch loads the static list of customer-service branches.
package branch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/telco-assist/internal/model"
)

// Load reads a branch list from a JSON or YAML file, chosen by extension.
func Load(path string) ([]model.Branch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "branch: read %s", path)
	}

	var branches []model.Branch
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &branches)
	default:
		err = json.Unmarshal(data, &branches)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "branch: parse %s", path)
	}

	if err := Validate(branches); err != nil {
		return nil, err
	}
	return branches, nil
}

// Validate checks every branch has a name and coordinates in range.
func Validate(branches []model.Branch) error {
	var problems []string
	for i, b := range branches {
		if strings.TrimSpace(b.Name) == "" {
			problems = append(problems, fmt.Sprintf("branch %d: name is required", i))
		}
		if b.Latitude < -90 || b.Latitude > 90 {
			problems = append(problems, fmt.Sprintf("branch %d: latitude %v out of range", i, b.Latitude))
		}
		if b.Longitude < -180 || b.Longitude > 180 {
			problems = append(problems, fmt.Sprintf("branch %d: longitude %v out of range", i, b.Longitude))
		}
	}
	if len(problems) > 0 {
		return eris.Errorf("branch: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Directory is a read-only view over the loaded branches.
type Directory struct {
	branches []model.Branch
	lower    []string
}

// NewDirectory copies branches into a Directory.
func NewDirectory(branches []model.Branch) *Directory {
	d := &Directory{
		branches: append([]model.Branch(nil), branches...),
		lower:    make([]string, len(branches)),
	}
	for i, b := range d.branches {
		d.lower[i] = strings.ToLower(b.Name)
	}
	return d
}

// All returns a copy of the branches in file order.
func (d *Directory) All() []model.Branch {
	return append([]model.Branch(nil), d.branches...)
}

// Len returns the number of branches.
func (d *Directory) Len() int { return len(d.branches) }

// Match returns the first branch whose lower-cased name occurs in input.
func (d *Directory) Match(input string) (model.Branch, bool) {
	input = strings.ToLower(input)
	for i, name := range d.lower {
		if name != "" && strings.Contains(input, name) {
			return d.branches[i], true
		}
	}
	return model.Branch{}, false
}
