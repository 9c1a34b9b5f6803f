// Package router assembles the gin engine: the middleware stack and the
// versioned route table of each area of the ledger.
package router

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// Route binds one method and path, relative to its module prefix, to a handler.
type Route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

// Module is a named set of routes mounted under a common prefix.
type Module struct {
	Name       string
	Prefix     string
	Middleware []gin.HandlerFunc
	Routes     []Route
}

func (m Module) mount(api *gin.RouterGroup) {
	group := api.Group(m.Prefix, m.Middleware...)
	for _, r := range m.Routes {
		group.Handle(r.Method, r.Path, r.Handler)
	}
}

// Router mounts modules below /api/<version> behind the API middleware.
type Router struct {
	engine     *gin.Engine
	version    string
	middleware []gin.HandlerFunc
	modules    []Module
}

func NewRouter(engine *gin.Engine, version string) *Router {
	if version == "" {
		version = "v1"
	}
	return &Router{engine: engine, version: version}
}

// BasePath returns the versioned prefix, e.g. "/api/v1"
func (r *Router) BasePath() string {
	return "/api/" + r.version
}

// Use appends middleware that runs before every module route
func (r *Router) Use(mw ...gin.HandlerFunc) *Router {
	r.middleware = append(r.middleware, mw...)
	return r
}

// Mount queues modules for Setup. Module names must be unique.
func (r *Router) Mount(modules ...Module) *Router {
	r.modules = append(r.modules, modules...)
	return r
}

// Setup registers every mounted module on the engine. It panics on a
// duplicate module name, like gin does on a duplicate route.
func (r *Router) Setup() {
	api := r.engine.Group(r.BasePath(), r.middleware...)
	seen := make(map[string]struct{}, len(r.modules))
	for _, m := range r.modules {
		if _, dup := seen[m.Name]; dup {
			panic(fmt.Sprintf("router: module %q mounted twice", m.Name))
		}
		seen[m.Name] = struct{}{}
		m.mount(api)
	}
}
