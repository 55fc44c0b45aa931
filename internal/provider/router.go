// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package provider

import "strings"

// Route sends models whose name starts with ModelPrefix to Provider.
type Route struct {
	ModelPrefix string
	Provider    Name
}

// DefaultRoutes sends GPT models to OpenAI.
var DefaultRoutes = []Route{{ModelPrefix: "gpt-", Provider: NameOpenAI}}

// Router resolves the provider of a model. The first matching route wins and
// models matching no route go to Bedrock.
type Router struct {
	routes []Route
}

// NewRouter returns a Router over routes, or over DefaultRoutes when routes is empty.
func NewRouter(routes []Route) *Router {
	if len(routes) == 0 {
		routes = DefaultRoutes
	}
	r := &Router{routes: make([]Route, len(routes))}
	for i, route := range routes {
		r.routes[i] = Route{ModelPrefix: strings.ToLower(route.ModelPrefix), Provider: route.Provider}
	}
	return r
}

// Resolve returns the provider serving model. Matching is case-insensitive.
func (r *Router) Resolve(model string) Name {
	model = strings.ToLower(model)
	for _, route := range r.routes {
		if strings.HasPrefix(model, route.ModelPrefix) {
			return route.Provider
		}
	}
	return NameBedrock
}
