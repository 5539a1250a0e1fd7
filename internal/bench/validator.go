package bench

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/KevinKickass/OpenSpiCore/internal/types"
)

//go:embed schema/bench-profile-v1.json
var benchProfileSchemaJSON string

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("bench-profile-v1.json",
		strings.NewReader(benchProfileSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("bench-profile-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateProfile prüft ein JSON-Dokument gegen das Schema
func (v *Validator) ValidateProfile(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return checkChannels(doc)
}

func (v *Validator) ValidateProfileDefinition(profile *types.BenchProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	return v.ValidateProfile(data)
}

// checkChannels covers what the schema cannot express: unique names and
// chip selects.
func checkChannels(doc any) error {
	var profile types.BenchProfile
	data, _ := json.Marshal(doc)
	if err := json.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	names := make(map[string]bool, len(profile.Channels))
	chipSelects := make(map[uint8]string, len(profile.Channels))
	for _, ch := range profile.Channels {
		if names[ch.Name] {
			return fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		names[ch.Name] = true

		if other, ok := chipSelects[ch.ChipSelect]; ok {
			return fmt.Errorf("channels %q and %q share chip select %d", other, ch.Name, ch.ChipSelect)
		}
		chipSelects[ch.ChipSelect] = ch.Name
	}
	return nil
}
