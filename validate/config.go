package validate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Section selects and tunes rules for one execution mode.
type Section struct {
	// Select lists the error codes to run. Empty means every registered
	// rule.
	Select []string `yaml:"select"`

	// Warning downgrades these codes to warning severity for this section.
	Warning []string `yaml:"warning"`

	// Ignore drops these codes entirely for this section.
	Ignore []string `yaml:"ignore"`
}

// Config is the validation configuration file.
type Config struct {
	PathBased Section `yaml:"path_based"`
	UseGit    Section `yaml:"use_git"`
	AllFiles  Section `yaml:"all_files"`

	// Categories holds custom named sections selectable by name.
	Categories map[string]Section `yaml:"custom_categories"`

	// SupportLevel maps a support level to codes ignored for items owned
	// by packs at that level.
	SupportLevel map[string]struct {
		Ignore []string `yaml:"ignore"`
	} `yaml:"support_level"`

	// IgnorableErrors lists codes that pack ignore files may suppress.
	// Codes outside this list are enforced regardless of local ignores.
	IgnorableErrors []string `yaml:"ignorable_errors"`
}

// Execution mode names accepted by Config.Section.
const (
	ModePathBased = "path_based"
	ModeUseGit    = "use_git"
	ModeAllFiles  = "all_files"
)

// LoadConfig reads a configuration file. A missing path yields the zero
// config, which selects every rule.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read validation config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse validation config %s: %w", path, err)
	}
	return cfg, nil
}

// Section resolves an execution mode or custom category name.
func (c *Config) Section(mode string) (Section, error) {
	switch mode {
	case ModePathBased:
		return c.PathBased, nil
	case ModeUseGit:
		return c.UseGit, nil
	case ModeAllFiles:
		return c.AllFiles, nil
	}
	if sec, ok := c.Categories[mode]; ok {
		return sec, nil
	}
	return Section{}, fmt.Errorf("unknown validation category %q", mode)
}

// ignoredForSupport reports whether a code is suppressed for a support level.
func (c *Config) ignoredForSupport(level string, code string) bool {
	sec, ok := c.SupportLevel[level]
	if !ok {
		return false
	}
	return contains(sec.Ignore, code)
}

// Ignorable reports whether pack-local ignores may suppress a code.
func (c *Config) Ignorable(code string) bool {
	return contains(c.IgnorableErrors, code)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// selected returns the codes this section runs, resolved against the
// registry, with ignores removed.
func (s Section) selected(reg *Registry) []string {
	codes := s.Select
	if len(codes) == 0 {
		codes = reg.Codes()
	}
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		if contains(s.Ignore, code) {
			continue
		}
		if reg.Rule(code) == nil {
			continue
		}
		out = append(out, code)
	}
	return out
}

// severityFor applies the section's downgrade list to a rule.
func (s Section) severityFor(rule *Rule) Severity {
	if rule.Severity == SeverityError && contains(s.Warning, rule.ErrorCode) {
		return SeverityWarning
	}
	return rule.Severity
}
