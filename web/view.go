package web

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/YuminosukeSato/insightml/dataset"
)

// PreviewRows is the number of rows shown in data previews.
const PreviewRows = 10

var funcs = template.FuncMap{
	"pct":  func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"f3":   func(v float64) string { return fmt.Sprintf("%.3f", v) },
	"join": strings.Join,
	"bytes": func(n int64) string {
		switch {
		case n >= 1<<20:
			return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
		case n >= 1<<10:
			return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
		}
		return fmt.Sprintf("%d B", n)
	},
	"has": func(list []string, s string) bool {
		for _, v := range list {
			if v == s {
				return true
			}
		}
		return false
	},
}

// table is a rendered slice of a frame.
type table struct {
	Header []string
	Rows   [][]string
	Total  int
}

func tableOf(f *dataset.Frame, n int) *table {
	if f == nil {
		return nil
	}
	return &table{Header: f.Names(), Rows: f.Head(n).Rows(), Total: f.NumRows()}
}

// markdownHTML converts generated markdown to HTML. Raw HTML in the input is
// dropped.
func markdownHTML(md string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags | mdhtml.SkipHTML})
	return template.HTML(markdown.ToHTML([]byte(md), p, r))
}

// chartView is one chart on the visualization page: an inline PNG or the
// reason it could not be drawn.
type chartView struct {
	Title   string
	Kind    string
	URI     template.URL
	Message string
}

func pngURI(data []byte) template.URL {
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(data))
}
