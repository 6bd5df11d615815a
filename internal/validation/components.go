package validation

import (
	"regexp"
	"strings"

	"github.com/untoldecay/idse/internal/types"
)

// componentEntryRe matches a component entry line under the Component
// Impact Report section:
//
//	- cache_layer [infrastructure]: storage_primitive, config_primitive
//
// Name, bracketed type, then a comma-separated parent primitive list.
var componentEntryRe = regexp.MustCompile(`^-\s+([A-Za-z0-9_./-]+)\s+\[([a-z_]+)\]:\s*(.+)$`)

const componentReportSection = "Component Impact Report"

// ParseComponentReport extracts component entries from an implementation
// artifact's Component Impact Report section. Lines that do not match the
// entry shape are ignored; entries carrying placeholder markers are dropped
// by the caller's placeholder scan, not here.
func ParseComponentReport(content string) []*types.Component {
	var components []*types.Component
	inSection := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if isHeading(trimmed) {
			inSection = headingContains(trimmed, componentReportSection)
			continue
		}
		if !inSection {
			continue
		}
		m := componentEntryRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		var primitives []string
		for _, p := range strings.Split(m[3], ",") {
			if p = strings.TrimSpace(p); p != "" {
				primitives = append(primitives, p)
			}
		}
		components = append(components, &types.Component{
			Name:             m[1],
			Type:             types.ComponentType(m[2]),
			ParentPrimitives: primitives,
		})
	}
	return components
}

func isHeading(line string) bool {
	return strings.HasPrefix(line, "#")
}

func headingContains(line, section string) bool {
	text := strings.TrimLeft(line, "# ")
	return strings.EqualFold(strings.TrimSpace(text), section)
}

// hasSection reports whether content carries a markdown heading whose text
// equals the section name (case-insensitive).
func hasSection(content, section string) bool {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if isHeading(trimmed) && headingContains(trimmed, section) {
			return true
		}
	}
	return false
}
