package config

const (
	// DefaultBuildDir is the build directory relative to the project root.
	DefaultBuildDir = "build/default"
	// DefaultConcurrency bounds the tasks executed in parallel per wave.
	DefaultConcurrency = 4
)

// DefaultConfig returns the default configuration: the conventional build
// directory, VCS metadata excluded, and no builders beyond the archive
// collector, which is always registered.
func DefaultConfig() *BobConfig {
	history := true
	return &BobConfig{
		BuildDir:    DefaultBuildDir,
		Exclude:     []string{".git", ".svn", ".hg", ".bob"},
		Concurrency: DefaultConcurrency,
		Options:     map[string]string{},
		Copy:        map[string]string{},
		Commands:    map[string]CommandConfig{},
		History:     &history,
	}
}
