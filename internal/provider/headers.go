package provider

import (
	"net/http"

	"github.com/llmrouter/gateway/internal/config"
)

// ApplyHeaderRules applies a provider's header rules to an outbound request
// in declaration order (spec.md §4.2 "Header rule application"):
//   - insert: set Name to Value, overwriting any existing value.
//   - remove: delete Name.
//   - forward: copy Name from the inbound caller request, falling back to
//     Default if the caller didn't send it; Rename changes the outbound
//     header name.
func ApplyHeaderRules(out http.Header, inbound http.Header, rules []config.HeaderRule) {
	for _, rule := range rules {
		switch rule.Op {
		case config.HeaderInsert:
			out.Set(rule.Name, rule.Value)
		case config.HeaderRemove:
			out.Del(rule.Name)
		case config.HeaderForward:
			name := rule.Name
			if rule.Rename != "" {
				name = rule.Rename
			}
			if v := inbound.Get(rule.Name); v != "" {
				out.Set(name, v)
			} else if rule.Default != "" {
				out.Set(name, rule.Default)
			}
		}
	}
}
