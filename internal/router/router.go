// Package router maps request paths onto scenario handlers. Matching is by
// exact path unless a route asks for a prefix: a request either selects
// exactly one route, the informational index at "/", or a plain 404.
package router

import (
	"bytes"
	_ "embed"
	"html/template"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

//go:embed index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type Route struct {
	Name        string
	Path        string
	Description string
	Handler     http.Handler

	// Prefix matches every path that starts with Path.
	Prefix bool
}

// New builds the routing table for one listener. Routes are registered in
// order; duplicate paths are a programming error and the later one is
// dropped with a log line.
func New(title string, routes ...Route) *mux.Router {
	r := mux.NewRouter()
	seen := make(map[string]bool, len(routes))
	listed := make([]Route, 0, len(routes))

	for _, rt := range routes {
		if seen[rt.Path] {
			log.Printf("router: duplicate path %s (%s) ignored", rt.Path, rt.Name)
			continue
		}
		seen[rt.Path] = true
		listed = append(listed, rt)
		if rt.Prefix {
			r.PathPrefix(rt.Path).Handler(rt.Handler).Name(rt.Name)
			continue
		}
		r.Handle(rt.Path, rt.Handler).Name(rt.Name)
	}

	r.Handle("/", indexHandler(title, listed)).Name("index")
	r.NotFoundHandler = http.HandlerFunc(notFound)
	return r
}

// Lookup reports the name of the route that would serve path.
func Lookup(r *mux.Router, path string) (string, bool) {
	req, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return "", false
	}
	var match mux.RouteMatch
	if !r.Match(req, &match) || match.Route == nil {
		return "", false
	}
	return match.Route.GetName(), true
}

func indexHandler(title string, routes []Route) http.Handler {
	var buf bytes.Buffer
	err := indexTmpl.Execute(&buf, struct {
		Title  string
		Routes []Route
	}{title, routes})
	if err != nil {
		// the template is static, so this only fails on a broken build
		panic(err)
	}
	page := buf.Bytes()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write(page); err != nil {
			log.Printf("router: write index for %s: %v", r.RemoteAddr, err)
		}
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "404 no scenario at "+r.URL.Path, http.StatusNotFound)
}
