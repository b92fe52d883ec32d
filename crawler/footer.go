package crawler

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/lukemcguire/offliner/urlutil"
)

const footerDateLayout = "2006/01/02 15:04"

var footerTemplate = template.Must(template.New("footer").Parse(
	`<div style="font-size:13px;color:darkgray;text-align:center">` +
		`Content of this page is extracted on {{.Date}} from the online {{.SourceName}} article ` +
		`<a style="color:black" href="{{.PageURL}}">{{.Title}}</a> ` +
		`(released under the <a style="color:black" href="{{.LicenseURL}}">{{.LicenseName}}</a>) ` +
		`using <a style="color:black" href="{{.ToolURL}}">{{.ToolName}}</a>` +
		`</div>`))

type footerData struct {
	Date        string
	SourceName  string
	PageURL     string
	Title       string
	LicenseName string
	LicenseURL  string
	ToolName    string
	ToolURL     string
}

// footerStage appends the attribution block to the page body.
func (c *Crawler) footerStage(_ context.Context, p *Page) error {
	attr := c.cfg.Attribution
	data := footerData{
		Date:        c.now().Format(footerDateLayout),
		SourceName:  attr.SourceName,
		PageURL:     p.URL,
		Title:       strings.TrimSuffix(p.Name, urlutil.PageExt),
		LicenseName: attr.LicenseName,
		LicenseURL:  attr.LicenseURL,
		ToolName:    attr.ToolName,
		ToolURL:     attr.ToolURL,
	}

	var buf strings.Builder
	if err := footerTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("render footer: %w", err)
	}
	p.Doc.Find("body").First().AppendHtml(buf.String())
	return nil
}
