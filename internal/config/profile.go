// Package config holds the PositionFactory configuration described in
// spec.md §3.A and §9: rather than a process-wide singleton, an
// ArchProfile value is constructed once (from a built-in default or a
// YAML override) and threaded explicitly through elfspace, pass, and
// mutator — "same effect, testable in isolation" per spec.md §9.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ArchProfile configures which Position variants PositionFactory produces
// and the three feature flags named in spec.md §3.A.
type ArchProfile struct {
	// Name identifies the profile, e.g. "x86_64", "arm", "aarch64".
	Name string `yaml:"name"`

	// NeedsSpecialCaseFirst: first-sibling becomes OffsetPosition, others
	// become SubsequentPosition (spec.md §3.A).
	NeedsSpecialCaseFirst bool `yaml:"needs_special_case_first"`

	// NeedsGenerationTracking enables lazy invalidation via generation
	// counters (spec.md §3.A, §4.C "Generation update algorithm").
	NeedsGenerationTracking bool `yaml:"needs_generation_tracking"`

	// NeedsUpdatePasses enables eager recalculation sweeps from Absolute
	// roots after every mutation (spec.md §4.C "Eager update pass").
	NeedsUpdatePasses bool `yaml:"needs_update_passes"`

	// UsesMappingSymbols enables ARM/AArch64 mapping-symbol handling in
	// the disassembler (SPEC_FULL.md supplemented feature 2).
	UsesMappingSymbols bool `yaml:"uses_mapping_symbols"`
}

// Built-in per-architecture defaults. x86-64 has no alignment-driven
// first-entry special case and relies purely on lazy generation
// invalidation; ARM and AArch64 profiles enable mapping-symbol handling,
// and the ARM profile also enables eager update passes, matching
// egalito's real configuration split
// (acknowledged in spec.md §1 as "configuration of the upstream
// disassembler, not part of the core").
var builtinProfiles = map[string]ArchProfile{
	"x86_64": {
		Name:                    "x86_64",
		NeedsSpecialCaseFirst:   false,
		NeedsGenerationTracking: true,
		NeedsUpdatePasses:       false,
		UsesMappingSymbols:      false,
	},
	"arm": {
		Name:                    "arm",
		NeedsSpecialCaseFirst:   true,
		NeedsGenerationTracking: true,
		NeedsUpdatePasses:       true,
		UsesMappingSymbols:      true,
	},
	"aarch64": {
		Name:                    "aarch64",
		NeedsSpecialCaseFirst:   true,
		NeedsGenerationTracking: true,
		NeedsUpdatePasses:       false,
		UsesMappingSymbols:      true,
	},
}

// DefaultProfile returns the built-in profile for arch, or an error if
// arch names no known profile.
func DefaultProfile(arch string) (ArchProfile, error) {
	p, ok := builtinProfiles[arch]
	if !ok {
		return ArchProfile{}, fmt.Errorf("no built-in profile for architecture %q", arch)
	}
	return p, nil
}

// LoadProfile reads an ArchProfile override from a YAML file at path. A
// missing field keeps the zero value, so a partial override document is
// valid; callers that want a full profile should start from
// DefaultProfile and overlay fields they care about.
func LoadProfile(path string) (ArchProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ArchProfile{}, fmt.Errorf("read profile %s: %w", path, err)
	}

	var p ArchProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return ArchProfile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.Name == "" {
		return ArchProfile{}, fmt.Errorf("profile %s: missing required \"name\" field", path)
	}
	return p, nil
}
