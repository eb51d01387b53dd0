package template

import "time"

// Convex is the template the backend database client authenticates with.
func Convex(lifetime time.Duration) Template {
	return Template{
		Name:       "convex",
		Audience:   "convex",
		Lifetime:   lifetime,
		IncludeOrg: true,
	}
}
