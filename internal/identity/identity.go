// Package identity loads the current user's identity roster: the display
// names and aliases that @mentions are matched against.
//
// The roster is a JSON file validated against an embedded schema before
// use. A roster that fails validation is an error, never a silent empty
// roster: mention matching against nothing would look like "no mentions"
// to the user.
package identity

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const rosterSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["users"],
  "additionalProperties": false,
  "properties": {
    "users": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["display_name"],
        "additionalProperties": false,
        "properties": {
          "display_name": {"type": "string", "minLength": 1},
          "aliases": {
            "type": "array",
            "items": {"type": "string", "minLength": 1}
          }
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("roster.schema.json", rosterSchema)

// Identity is one known identity of the current user.
type Identity struct {
	// DisplayName is the name the editor shows for this user.
	DisplayName string `json:"display_name"`

	// Aliases are alternate spellings or short forms.
	Aliases []string `json:"aliases,omitempty"`
}

// Roster is the set of identities mentions are matched against.
type Roster struct {
	Users []Identity `json:"users"`
}

// Variants returns every known name variant, display names first.
func (r *Roster) Variants() []string {
	var out []string
	for _, u := range r.Users {
		if u.DisplayName != "" {
			out = append(out, u.DisplayName)
		}
	}
	for _, u := range r.Users {
		out = append(out, u.Aliases...)
	}
	return out
}

// Parse validates and decodes a roster document.
func Parse(data []byte) (*Roster, error) {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("roster schema: %w", err)
	}

	var roster Roster
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	return &roster, nil
}

// Load reads and parses the roster file at path.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return Parse(data)
}
