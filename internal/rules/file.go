// YAML policy file loading. Values support environment variable
// overrides via ${VAR} or $VAR syntax.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of a retention policy file:
//
//	default:
//	  older_than: 720h
//	  exclude_pinned: true
//	chats: [-1001234567890, 133742]   # omit for all chats
//	overrides:
//	  - id: -1001234567890
//	    older_than: 24h
//	    exclude_media: [photo, document]
type fileConfig struct {
	Default   ruleConfig   `yaml:"default"`
	Chats     []int64      `yaml:"chats"`
	Overrides []ruleConfig `yaml:"overrides"`
}

type ruleConfig struct {
	ID            int64    `yaml:"id"`
	OlderThan     string   `yaml:"older_than"`
	ExcludePinned bool     `yaml:"exclude_pinned"`
	ExcludeOwn    bool     `yaml:"exclude_own"`
	ExcludeMedia  []string `yaml:"exclude_media"`
}

// LoadFile reads and parses a YAML policy file, expanding env vars.
func LoadFile(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return LoadBytes(raw)
}

// LoadBytes parses a YAML policy from bytes (useful for testing).
func LoadBytes(data []byte) (*Policy, error) {
	expanded := expandEnvVars(string(data))

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return nil, fmt.Errorf("rules: parse: %w", err)
	}

	def, err := fc.Default.toRule()
	if err != nil {
		return nil, fmt.Errorf("rules: default: %w", err)
	}

	p := &Policy{
		Default:   def,
		Scope:     fc.Chats,
		Overrides: make(map[int64]Rule, len(fc.Overrides)),
	}
	for _, oc := range fc.Overrides {
		if oc.ID == 0 {
			return nil, fmt.Errorf("rules: override without chat id")
		}
		r, err := oc.toRule()
		if err != nil {
			return nil, fmt.Errorf("rules: override %d: %w", oc.ID, err)
		}
		p.Overrides[oc.ID] = r
	}
	return p, nil
}

func (rc ruleConfig) toRule() (Rule, error) {
	r := Rule{
		ExcludePinned: rc.ExcludePinned,
		ExcludeOwn:    rc.ExcludeOwn,
		ExcludeMedia:  rc.ExcludeMedia,
	}
	if rc.OlderThan != "" {
		d, err := time.ParseDuration(rc.OlderThan)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid older_than %q: %w", rc.OlderThan, err)
		}
		r.OlderThan = d
	}
	return r, nil
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the corresponding
// environment variable value. Missing vars become empty strings.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
