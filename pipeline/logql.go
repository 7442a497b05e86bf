package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// BuildLogQuery synthesizes a log-store selector from extracted params.
// Label values have embedded double quotes escaped. lineFilter, when set,
// is appended as |= (literal) or |~ (regex).
func BuildLogQuery(params Params, lineFilter string, filterIsRegex bool) string {
	var labels []string
	if params.Service != "" {
		labels = append(labels, fmt.Sprintf(`service=%q`, params.Service))
	}
	if params.Level != "" {
		labels = append(labels, fmt.Sprintf(`level=%q`, params.Level))
	}
	keys := make([]string, 0, len(params.AdditionalFilters))
	for k := range params.AdditionalFilters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		labels = append(labels, fmt.Sprintf(`%s=%q`, k, params.AdditionalFilters[k]))
	}

	selector := "{" + strings.Join(labels, ", ") + "}"
	if lineFilter == "" {
		return selector
	}
	op := "|="
	if filterIsRegex {
		op = "|~"
	}
	return fmt.Sprintf(`%s %s %q`, selector, op, lineFilter)
}
