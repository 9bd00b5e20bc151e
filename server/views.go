package server

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"
)

var pages = template.Must(template.New("control").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Lower Thirds</title></head>
<body>
<div id="app">
<ul>
{{range .}}<li><a href="#{{.Slug}}">{{.Name}}</a> (<a href="/playout/{{.Slug}}">playout</a>)</li>
{{end}}</ul>
</div>
</body>
</html>
`))

func init() {
	template.Must(pages.New("playout").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Name}}</title></head>
<body>
<div id="app" data-channel="{{.Slug}}"></div>
</body>
</html>
`))
}

type pageChannel struct {
	Name string
	Slug string
}

// PageHandler serves the control and playout pages.
type PageHandler struct {
	registry *Registry
}

// NewPageHandler creates a new page handler.
func NewPageHandler(registry *Registry) *PageHandler {
	return &PageHandler{registry: registry}
}

// RegisterRoutes mounts the pages on r.
func (p *PageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", p.index)
	r.Get("/playout/{channel}", p.playout)
}

func (p *PageHandler) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		glog.Errorf("[http]failed to render %s: %v\n", name, err)
		http.Error(w, "failed to render", http.StatusInternalServerError)
	}
}

func (p *PageHandler) index(w http.ResponseWriter, r *http.Request) {
	var channels []pageChannel
	for _, ch := range p.registry.List() {
		channels = append(channels, pageChannel{Name: ch.Name(), Slug: ch.Slug()})
	}
	p.render(w, "control", channels)
}

func (p *PageHandler) playout(w http.ResponseWriter, r *http.Request) {
	ch, err := p.registry.Get(chi.URLParam(r, "channel"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	p.render(w, "playout", pageChannel{Name: ch.Name(), Slug: ch.Slug()})
}
