// Package render produces the HTML the editor displays: one fragment per
// bind and the page shell that holds them.
package render

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/xkilldash9x/bindpad/api/schemas"
)

const bindTemplate = `<div class="bind" bind-id="{{.ID}}">
<form class="options">
<input name="id" type="hidden" value="{{.ID}}">
<div class="option code">
<label for="option-code-{{.ID}}" class="title">Code:</label>
<input id="option-code-{{.ID}}" name="code" type="text" value="{{.Code}}">
</div>
<div class="option action">
<label for="option-action-{{.ID}}" class="title">Action:</label>
<select2 id="option-action-{{.ID}}">
<container>
{{- range .Actions}}
<option2>
<input id="option-action-select-{{$.ID}}-{{.Name}}" name="action" value="{{.Name}}" type="radio"{{if .Checked}} checked{{end}}>
<label for="option-action-select-{{$.ID}}-{{.Name}}">{{.Name}}</label>
</option2>
{{- end}}
</container>
</select2>
</div>
<div class="option value"{{if .ValueDisabled}} disabled{{end}}>
<label for="option-value-{{.ID}}" class="title">Value:</label>
<input id="option-value-{{.ID}}" name="value" type="text" value="{{.Value}}">
</div>
<div class="option checkbox">
<input id="option-repeat-{{.ID}}" name="repeat" type="checkbox"{{if .Repeat}} checked{{end}}>
<label for="option-repeat-{{.ID}}" class="title">Repeat:</label>
<label for="option-repeat-{{.ID}}" class="checkbox"></label>
</div>
<button class="remove" type="button" target="{{.ID}}"><img src="/assets/images/icons/cross-icon.svg" alt=""></button>
</form>
</div>`

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<div id="header">
<label for="pressed-code">Pressed code:</label>
<input id="pressed-code" type="text" value="{{.PressedCode}}" readonly>
</div>
<div id="main">
<button class="add-bind" type="button">Add bind</button>
<div class="binds">
{{- range .Binds}}
{{.}}
{{- end}}
</div>
</div>
</body>
</html>`

var (
	bindTmpl = template.Must(template.New("bind").Parse(bindTemplate))
	pageTmpl = template.Must(template.New("page").Parse(pageTemplate))
)

type actionOption struct {
	Name    string
	Checked bool
}

type bindView struct {
	ID            string
	Code          string
	Actions       []actionOption
	Value         string
	ValueDisabled bool
	Repeat        bool
}

type pageView struct {
	Title       string
	PressedCode string
	Binds       []template.HTML
}

// Bind renders the editor fragment of b.
func Bind(b schemas.Bind) (string, error) {
	kinds := schemas.AllActionKinds()
	view := bindView{
		ID:      b.ID,
		Code:    b.Code,
		Actions: make([]actionOption, 0, len(kinds)),
		Repeat:  b.Repeat,
	}
	for _, k := range kinds {
		view.Actions = append(view.Actions, actionOption{Name: string(k), Checked: k == b.Action.Kind})
	}

	switch b.Action.Kind {
	case schemas.ActionKeyboardPress:
		view.Value = strings.Join(b.Action.Keys, ", ")
	case schemas.ActionBrowserOpen:
		view.Value = b.Action.URL
	default:
		view.ValueDisabled = true
	}

	var sb strings.Builder
	if err := bindTmpl.Execute(&sb, view); err != nil {
		return "", fmt.Errorf("failed to render bind %s: %w", b.ID, err)
	}
	return sb.String(), nil
}

// Binds renders each bind in order.
func Binds(binds []schemas.Bind) ([]string, error) {
	out := make([]string, 0, len(binds))
	for _, b := range binds {
		markup, err := Bind(b)
		if err != nil {
			return nil, err
		}
		out = append(out, markup)
	}
	return out, nil
}

// Page renders the editor document with the given bind fragments already in
// the list. Fragments must come from Bind.
func Page(fragments []string) (string, error) {
	view := pageView{Title: "bindpad", Binds: make([]template.HTML, 0, len(fragments))}
	for _, f := range fragments {
		view.Binds = append(view.Binds, template.HTML(f)) //nolint:gosec // produced by Bind
	}
	var sb strings.Builder
	if err := pageTmpl.Execute(&sb, view); err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	return sb.String(), nil
}
