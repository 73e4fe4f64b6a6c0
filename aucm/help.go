package aucm

import (
	"embed"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/eggtone/synth/node"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type (
	formatDoc struct {
		Name string
		Doc  string
		Keys []keyDoc
	}

	keyDoc struct {
		Name string
		Args string
		Doc  string
	}

	helpData struct {
		Types  []*node.Type
		Type   *node.Type
		Field  *node.Field
		Format *formatDoc
		Key    string
	}
)

var formats = map[string]*formatDoc{
	"nodes": {
		Name: "nodes",
		Doc:  "Child nodes written as nested blocks, run in order.",
		Keys: []keyDoc{{Name: "<type>", Args: "{ ... }", Doc: "a child node of any type"}},
	},
	"ranges": {
		Name: "ranges",
		Doc:  "Note ranges, each played by its own node. Ranges must not overlap.",
		Keys: []keyDoc{{Name: "range", Args: "(start[, count[, dest]]) <type> { ... }", Doc: "notes start..start+count-1 play the node with the note moved to dest; count defaults to 1 and dest to start"}},
	},
	"envelope": {
		Name: "envelope",
		Doc:  "Either the attack, decay and release presets or an explicit list of points.",
		Keys: []keyDoc{
			{Name: "attack", Args: "0..3", Doc: "rise to 1 in 4, 12, 30 or 80 ms"},
			{Name: "decay", Args: "0..3", Doc: "fall to 0.7, 0.5, 0.3 or 0.15 in 30, 80, 200 or 500 ms"},
			{Name: "release", Args: "0..7", Doc: "fall to 0 in 15, 40, 80, 150, 300, 600, 1000 or 2000 ms"},
			{Name: "init", Args: "level", Doc: "starting level, -1..1, 0 by default"},
			{Name: "point", Args: "ms, level[, curve]", Doc: "reach level ms after the previous point; curve 0 is linear, 1..255 exponential"},
			{Name: "hires", Args: "0|1", Doc: "store levels with 16 bits"},
		},
	},
	"coefficients": {
		Name: "coefficients",
		Doc:  "Comma separated amplitudes 0..1, fundamental first.",
	},
}

//go:embed templates/*.tmpl
var templateFS embed.FS

var helpTemplate = template.Must(template.New("help").Funcs(sprig.TxtFuncMap()).Funcs(template.FuncMap{
	"heading":  func(s string) string { return cases.Title(language.English).String(s) },
	"required": func(f *node.Field) bool { return f.Flags&node.Required != 0 && f.Flags&node.Fallback == 0 },
	"links":    links,
}).ParseFS(templateFS, "templates/*.tmpl"))

// links names the link targets the modes accept.
func links(m node.Mode) []string {
	var ret []string
	if m&node.ModeBuffer != 0 {
		ret = append(ret, "buf0..buf15")
	}
	if m&node.ModeNoteID != 0 {
		ret = append(ret, "noteid")
	}
	if m&node.ModeNoteHz != 0 {
		ret = append(ret, "notehz")
	}
	return ret
}

// showHelp writes the documentation for the innermost scope and stops the
// compilation.
func (p *parser) showHelp() error {
	data := helpData{Types: node.Types()}
	name := "types"
	if len(p.scopes) > 0 {
		s := p.scopes[len(p.scopes)-1]
		data.Type, data.Field, data.Key = s.typ, s.field, s.key
		switch {
		case s.field != nil:
			name = "field"
			data.Format = formats[s.field.Format]
		case s.format != "":
			name = "format"
			data.Format = formats[s.format]
		default:
			name = "node"
			if f := s.typ.Principal(); f != nil {
				data.Format = formats[f.Format]
			}
		}
	}
	if err := helpTemplate.ExecuteTemplate(p.help, name, data); err != nil {
		return p.fail(fmt.Errorf("could not render help: %w", err))
	}
	return p.fail(ErrFullyLogged)
}
