package web

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/paulmach/orb"

	"github.com/justestif/tonal-divider/internal/clustering"
	"github.com/justestif/tonal-divider/internal/engine"
)

// Templates manages HTML template rendering.
type Templates struct {
	templates map[string]*template.Template
	partials  map[string]*template.Template
	funcs     template.FuncMap
}

// NewTemplates creates a new template manager by loading templates from the given filesystem.
func NewTemplates(templatesFS fs.FS) (*Templates, error) {
	t := &Templates{
		templates: make(map[string]*template.Template),
		partials:  make(map[string]*template.Template),
		funcs:     defaultFuncs(),
	}

	if err := t.load(templatesFS); err != nil {
		return nil, err
	}

	return t, nil
}

// Render renders a page template inside the base layout.
func (t *Templates) Render(w io.Writer, page string, data any) error {
	tmpl, ok := t.templates[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}

// RenderPartial renders a partial template (without base layout) with the given data.
func (t *Templates) RenderPartial(w io.Writer, partial string, data any) error {
	tmpl, ok := t.partials[partial]
	if !ok {
		return fmt.Errorf("partial %q not found", partial)
	}
	return tmpl.ExecuteTemplate(w, partial, data)
}

// load parses layouts/*.html, partials/*.html and pages/*.html. Every page
// is parsed together with all layouts and partials.
func (t *Templates) load(templatesFS fs.FS) error {
	layouts, err := fs.Glob(templatesFS, "layouts/*.html")
	if err != nil {
		return fmt.Errorf("finding layouts: %w", err)
	}
	partials, err := fs.Glob(templatesFS, "partials/*.html")
	if err != nil {
		return fmt.Errorf("finding partials: %w", err)
	}
	pages, err := fs.Glob(templatesFS, "pages/*.html")
	if err != nil {
		return fmt.Errorf("finding pages: %w", err)
	}

	common := append(layouts, partials...)

	for _, page := range pages {
		name := trimExt(page)
		files := append([]string{page}, common...)

		tmpl, err := template.New(name).Funcs(t.funcs).ParseFS(templatesFS, files...)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		t.templates[name] = tmpl
	}

	// Partials are also served alone for polling refreshes.
	for _, partial := range partials {
		name := trimExt(partial)

		tmpl, err := template.New(name).Funcs(t.funcs).ParseFS(templatesFS, partial)
		if err != nil {
			return fmt.Errorf("parsing partial %s: %w", name, err)
		}
		t.partials[name] = tmpl
	}

	return nil
}

func trimExt(path string) string {
	name := filepath.Base(path)
	return name[:len(name)-len(filepath.Ext(name))]
}

// defaultFuncs returns the template functions. The drawing is a 100x100 SVG
// with loudness growing upwards.
func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"sx": func(x float64) string {
			return fmt.Sprintf("%.2f", x*100)
		},
		"sy": func(y float64) string {
			return fmt.Sprintf("%.2f", (1-y)*100)
		},
		// radius grows with age, capped so old notes don't swamp the view
		"radius": func(age float64) string {
			r := 0.8 + age/5
			if r > 3 {
				r = 3
			}
			return fmt.Sprintf("%.2f", r)
		},
		"fixed": func(v float64) string {
			return fmt.Sprintf("%.2f", v)
		},
		"add": func(a, b int) int {
			return a + b
		},
	}
}

// PageData contains common data passed to all page templates.
type PageData struct {
	Title       string
	CurrentPath string
}

// HomePageData contains data for the home page template.
type HomePageData struct {
	PageData
	Divider DividerData
}

// DividerData is a snapshot prepared for drawing.
type DividerData struct {
	Frame    uint64
	Time     float64
	Points   []PointData
	Centres  []orb.Point
	Lines    []LineData
	Capacity int
	Summary  string
}

// PointData is one population point.
type PointData struct {
	X, Y      float64
	Age       float64
	LongLived bool
	Region    string
}

// LineData is a filled slot. X1,Y1 to X2,Y2 spans the plane; it falls back
// to the anchors when the line is vertical.
type LineData struct {
	Slot           int
	Age            uint64
	X1, Y1, X2, Y2 float64
	Ref1, Ref2     orb.Point
	Regions        string
}

func newDividerData(s engine.Snapshot) DividerData {
	d := DividerData{
		Frame:    s.Frame,
		Time:     s.Time,
		Centres:  s.Centres,
		Capacity: s.Capacity,
		Summary:  engine.FormatSummary(s),
	}
	for _, p := range s.Points {
		d.Points = append(d.Points, PointData{
			X:         p.X,
			Y:         p.Y,
			Age:       p.Age,
			LongLived: p.LongLived(),
			Region:    clustering.RegionName(p.XY()),
		})
	}
	for _, l := range s.Lines {
		from, to := l.Ref1, l.Ref2
		if len(l.Edges) == 2 {
			from, to = l.Edges[0], l.Edges[1]
		}
		d.Lines = append(d.Lines, LineData{
			Slot:    l.Slot,
			Age:     l.Age,
			X1:      from.X(),
			Y1:      from.Y(),
			X2:      to.X(),
			Y2:      to.Y(),
			Ref1:    l.Ref1,
			Ref2:    l.Ref2,
			Regions: clustering.RegionName(l.Ref1) + " → " + clustering.RegionName(l.Ref2),
		})
	}
	return d
}
