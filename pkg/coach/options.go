package coach

import (
	"fmt"

	"github.com/teslashibe/go-coach/pkg/state"
)

// Choice is one selectable interview setting.
type Choice struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Catalogue lists the selectable roles, difficulties and interview modes.
type Catalogue struct {
	Roles        []Choice `json:"roles"`
	Difficulties []Choice `json:"difficulties"`
	Modes        []Choice `json:"modes"`

	// Default is used for fields a caller leaves empty.
	Default state.Options `json:"default"`
}

// DefaultCatalogue returns the built-in interview settings.
func DefaultCatalogue() Catalogue {
	return Catalogue{
		Roles: []Choice{
			{ID: "software_engineer", Label: "Software Engineer"},
			{ID: "product_manager", Label: "Product Manager"},
			{ID: "data_scientist", Label: "Data Scientist"},
			{ID: "designer", Label: "Product Designer"},
		},
		Difficulties: []Choice{
			{ID: "easy", Label: "Easy", Description: "Friendly screening questions with hints"},
			{ID: "medium", Label: "Medium", Description: "Typical on-site questions with follow-ups"},
			{ID: "hard", Label: "Hard", Description: "Senior-level depth and pushback"},
		},
		Modes: []Choice{
			{ID: "behavioral", Label: "Behavioral", Description: "Past experience, STAR answers"},
			{ID: "technical", Label: "Technical", Description: "Domain knowledge and problem solving"},
			{ID: "system_design", Label: "System Design", Description: "Architecture and trade-offs"},
		},
		Default: state.Options{
			Role:       "software_engineer",
			Difficulty: "medium",
			Mode:       "behavioral",
		},
	}
}

// Resolve fills empty fields with defaults and rejects unknown ids.
func (c Catalogue) Resolve(o state.Options) (state.Options, error) {
	def := c.Default
	if o.Role == "" {
		o.Role = def.Role
	}
	if o.Difficulty == "" {
		o.Difficulty = def.Difficulty
	}
	if o.Mode == "" {
		o.Mode = def.Mode
	}

	if _, ok := find(c.Roles, o.Role); !ok {
		return o, fmt.Errorf("%w: role %q", ErrInvalidOptions, o.Role)
	}
	if _, ok := find(c.Difficulties, o.Difficulty); !ok {
		return o, fmt.Errorf("%w: difficulty %q", ErrInvalidOptions, o.Difficulty)
	}
	if _, ok := find(c.Modes, o.Mode); !ok {
		return o, fmt.Errorf("%w: mode %q", ErrInvalidOptions, o.Mode)
	}
	return o, nil
}

// Label returns the display label for id in list, or id itself.
func Label(list []Choice, id string) string {
	if ch, ok := find(list, id); ok {
		return ch.Label
	}
	return id
}

func find(list []Choice, id string) (Choice, bool) {
	for _, ch := range list {
		if ch.ID == id {
			return ch, true
		}
	}
	return Choice{}, false
}
