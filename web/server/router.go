/*
 * Copyright 2024 caiflower Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"github.com/caiflower/staticd/web/protocol"
	"github.com/caiflower/staticd/web/resource"
)

type handlerKind int

const (
	handleNotFound handlerKind = iota
	handleStatic
)

func (k handlerKind) String() string {
	switch k {
	case handleStatic:
		return "static"
	default:
		return "not-found"
	}
}

type route struct {
	name  string
	match func(req *protocol.Request) bool
	kind  handlerKind
}

// Router dispatches over a fixed table; the first matching route wins.
type Router struct {
	resolver *resource.Resolver
	routes   []route
}

func NewRouter(resolver *resource.Resolver) *Router {
	return &Router{
		resolver: resolver,
		routes: []route{
			{
				name:  "malformed",
				match: func(req *protocol.Request) bool { return req == nil || !req.Resource.IsPath() },
				kind:  handleNotFound,
			},
			{
				// any method, GET and POST get no special treatment
				name:  "static",
				match: func(req *protocol.Request) bool { return true },
				kind:  handleStatic,
			},
		},
	}
}

// Route picks the handler for req. A nil request stands for one the decoder rejected.
func (rt *Router) Route(req *protocol.Request) handlerKind {
	for _, r := range rt.routes {
		if r.match(req) {
			return r.kind
		}
	}
	return handleNotFound
}

// Handle builds the response for req. The label names what was served
// (file, directory or not-found) for logs and metrics.
func (rt *Router) Handle(req *protocol.Request) (resp *protocol.Response, label string) {
	switch rt.Route(req) {
	case handleStatic:
		res := rt.resolver.Resolve(req.Path())
		return rt.resolver.Response(res), res.Kind.String()
	default:
		return rt.resolver.NotFound(), resource.KindNotFound.String()
	}
}
