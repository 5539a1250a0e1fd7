package bench

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/KevinKickass/OpenSpiCore/internal/types"
)

var ErrProfileNotFound = errors.New("bench profile not found")

var profileExtensions = []string{"", ".json", ".yaml", ".yml"}

type ProfileLoader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewProfileLoader(searchPaths []string) (*ProfileLoader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}

	return &ProfileLoader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load sucht das Profil in allen Suchpfaden, mit oder ohne Endung
func (l *ProfileLoader) Load(profilePath string) (*types.BenchProfile, error) {
	if cached, ok := l.cache.Load(profilePath); ok {
		return cached.(*types.BenchProfile), nil
	}

	var data []byte
	var foundPath string

	candidates := l.searchPaths
	if filepath.IsAbs(profilePath) {
		candidates = []string{""}
	}

search:
	for _, searchPath := range candidates {
		for _, ext := range profileExtensions {
			fullPath := filepath.Join(searchPath, profilePath+ext)
			if b, err := os.ReadFile(fullPath); err == nil {
				data, foundPath = b, fullPath
				break search
			}
		}
	}

	if data == nil {
		return nil, fmt.Errorf("%w: %s (searched in: %v)", ErrProfileNotFound, profilePath, l.searchPaths)
	}

	profile, err := l.Parse(data, filepath.Ext(foundPath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", foundPath, err)
	}

	l.cache.Store(profilePath, profile)

	return profile, nil
}

// Parse validates and decodes a profile. ext selects YAML for ".yaml" and
// ".yml", JSON otherwise.
func (l *ProfileLoader) Parse(data []byte, ext string) (*types.BenchProfile, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML: %w", err)
		}
		data = converted
	}

	if err := l.validator.ValidateProfile(data); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var profile types.BenchProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

func (l *ProfileLoader) ClearCache() {
	l.cache.Range(func(key, value any) bool {
		l.cache.Delete(key)
		return true
	})
}
