package executor

import (
	"strings"

	"github.com/flosch/pongo2/v6"
)

func init() {
	// Shorthand so instructions can write {{ page.body|truncate:500 }}.
	pongo2.RegisterFilter("truncate", func(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
		s := in.String()
		if n := param.Integer(); n > 0 && n < len(s) {
			return pongo2.AsValue(s[:n]), nil
		}
		return in, nil
	})
}

// renderTemplate resolves {{ ... }} references in tmpl against the merged
// upstream context, so instructions and tool params can reach predecessor
// outputs by node id, e.g. {{ fetch_page.body }}. Plain strings skip the
// template engine entirely.
func renderTemplate(tmpl string, ctx map[string]any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	tpl, err := pongo2.FromString(tmpl)
	if err != nil {
		return "", err
	}
	return tpl.Execute(pongo2.Context(ctx))
}
