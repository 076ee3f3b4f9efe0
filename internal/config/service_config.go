package config

// SectionConfig defines the configuration lifecycle every config section
// follows.
type SectionConfig interface {
	// ApplyDefaults fills zero values with sensible defaults
	ApplyDefaults()

	// ApplyEnvOverrides applies environment variable overrides
	ApplyEnvOverrides()

	// ResolvePaths resolves relative paths against the directory holding
	// the config file.
	ResolvePaths(configDir string)

	// Validate returns an error if the configuration is invalid.
	Validate() error
}

// ApplySections runs ApplyDefaults, ApplyEnvOverrides, ResolvePaths and
// Validate on each section, in that order, stopping at the first error.
func ApplySections(configDir string, sections ...SectionConfig) error {
	for _, s := range sections {
		s.ApplyDefaults()
		s.ApplyEnvOverrides()
		s.ResolvePaths(configDir)
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
