package config

// CommandConfig defines a builder that runs an external tool once per input.
// Args may contain the {input} and {output} placeholders.
type CommandConfig struct {
	Tool        string   `json:"tool" yaml:"tool"`                                     // Executable name or path
	Args        []string `json:"args,omitempty" yaml:"args,omitempty"`                 // Argument template
	InExts      []string `json:"in_exts" yaml:"in_exts"`                               // Handled input extensions, with dot
	OutExt      string   `json:"out_ext" yaml:"out_ext"`                               // Output extension, with dot
	CreateOrder int      `json:"create_order,omitempty" yaml:"create_order,omitempty"` // Task creation order
}

// BobConfig is the top-level configuration.
type BobConfig struct {
	BuildDir    string                   `json:"build_dir,omitempty" yaml:"build_dir,omitempty"`     // Root-relative build directory
	Exclude     []string                 `json:"exclude,omitempty" yaml:"exclude,omitempty"`         // Directory names never scanned for sources
	Concurrency int                      `json:"concurrency,omitempty" yaml:"concurrency,omitempty"` // Parallel tasks per wave
	Options     map[string]string        `json:"options,omitempty" yaml:"options,omitempty"`         // Project options visible to builders
	Copy        map[string]string        `json:"copy,omitempty" yaml:"copy,omitempty"`               // Copy builders: input ext -> output ext
	Commands    map[string]CommandConfig `json:"commands,omitempty" yaml:"commands,omitempty"`       // Command builders keyed by name
	History     *bool                    `json:"history,omitempty" yaml:"history,omitempty"`         // Record builds in the history database
}

// HistoryEnabled reports whether builds are recorded. Unset means enabled.
func (c *BobConfig) HistoryEnabled() bool {
	return c.History == nil || *c.History
}
