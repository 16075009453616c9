package catalog

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
)

// Listing is one offering from the resort's recommendation catalog.
type Listing struct {
	Name        string `yaml:"name" validate:"required"`
	Category    string `yaml:"category" validate:"required,oneof=restaurant activity wellness"`
	Cuisine     string `yaml:"cuisine"`
	Budget      string `yaml:"budget" validate:"omitempty,oneof=budget moderate premium"`
	Partner     bool   `yaml:"partner"`
	Description string `yaml:"description"`
}

type catalogFile struct {
	Listings []Listing `yaml:"listings"`
}

// Catalog is the read-only set of listings, loaded once at startup. It is
// never written by the engine; its one job is ranked lookups for
// recommendation turns.
type Catalog struct {
	listings []Listing
}

// Query filters listings. Empty fields match everything.
type Query struct {
	Category string
	Cuisine  string
	Budget   string
}

// New builds a catalog from already-validated listings.
func New(listings []Listing) *Catalog {
	return &Catalog{listings: listings}
}

// Load reads and validates a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to read catalog file"),
			errors.Fields{"path": path},
		)
	}
	return Parse(data)
}

// Parse decodes and validates YAML catalog content.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to parse catalog")
	}

	validate := validator.New()
	for i, listing := range file.Listings {
		if err := validate.Struct(listing); err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.ValidationFailed, "invalid catalog listing"),
				errors.Fields{"index": i, "name": listing.Name},
			)
		}
	}
	return New(file.Listings), nil
}

// Len returns the number of listings.
func (c *Catalog) Len() int { return len(c.listings) }

// Query returns matching listings, partners first, then by name so results
// are stable across runs.
func (c *Catalog) Query(q Query) []Listing {
	var matched []Listing
	for _, l := range c.listings {
		if q.Category != "" && !strings.EqualFold(l.Category, q.Category) {
			continue
		}
		if q.Cuisine != "" && !strings.EqualFold(l.Cuisine, q.Cuisine) {
			continue
		}
		if q.Budget != "" && !strings.EqualFold(l.Budget, q.Budget) {
			continue
		}
		matched = append(matched, l)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Partner != matched[j].Partner {
			return matched[i].Partner
		}
		return matched[i].Name < matched[j].Name
	})
	return matched
}

// maxSuggestions bounds how many listings a single turn surfaces.
const maxSuggestions = 3

var activityWords = []string{"activité", "activite", "activity", "faire", "visiter", "visit", "excursion", "sortir"}
var wellnessWords = []string{"spa", "massage", "wellness", "détente", "detente", "relax"}

// Suggest derives a query from the guest's message and profile and renders
// the best matches as prompt-ready lines. It satisfies the engine's
// recommender contract.
func (c *Catalog) Suggest(_ context.Context, profile *core.ClientProfile, message string) ([]string, error) {
	q := Query{Category: "restaurant"}
	lower := strings.ToLower(message)
	for _, w := range activityWords {
		if strings.Contains(lower, w) {
			q.Category = "activity"
			break
		}
	}
	for _, w := range wellnessWords {
		if strings.Contains(lower, w) {
			q.Category = "wellness"
			break
		}
	}

	if profile != nil {
		q.Budget = profile.BudgetRange
		if q.Category == "restaurant" {
			q.Cuisine = profile.Preferences["cuisine"]
		}
	}

	matched := c.Query(q)
	if len(matched) == 0 && (q.Cuisine != "" || q.Budget != "") {
		// Too narrow for this guest; relax the profile filters rather than
		// answering with nothing.
		matched = c.Query(Query{Category: q.Category})
	}
	if len(matched) > maxSuggestions {
		matched = matched[:maxSuggestions]
	}

	lines := make([]string, 0, len(matched))
	for _, l := range matched {
		lines = append(lines, renderLine(l))
	}
	return lines, nil
}

func renderLine(l Listing) string {
	var b strings.Builder
	b.WriteString(l.Name)
	if l.Partner {
		b.WriteString(" (partner)")
	}
	for _, part := range []string{l.Cuisine, l.Budget, l.Description} {
		if part != "" {
			b.WriteString(", ")
			b.WriteString(part)
		}
	}
	return b.String()
}
