package extract

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

func newRenderer() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.DefinitionList,
		),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
}

// RenderHTML converts the Markdown document into an HTML fragment. The mirror
// is always produced from the Markdown so the two never diverge in prose.
func (e *Extractor) RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := e.renderer.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <link rel="stylesheet" href="{{.Stylesheet}}">
</head>
<body>
    <main class="markdown-content">
{{.Body}}
    </main>
</body>
</html>
`))

// RenderPage wraps a rendered fragment in the mirror document, linking the
// shared stylesheet at stylesheetHref.
func RenderPage(body, stylesheetHref, title string) (string, error) {
	if title == "" {
		title = "Markdown Content"
	}
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Title      string
		Stylesheet string
		Body       template.HTML
	}{
		Title:      title,
		Stylesheet: stylesheetHref,
		Body:       template.HTML(body),
	})
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return buf.String(), nil
}
