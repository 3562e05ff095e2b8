package serializer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tabler is implemented by documents that have a natural tabular rendering.
type Tabler interface {
	TableHeaders() []string
	TableRows() [][]string
}

var titleCaser = cases.Title(language.English)

// writeTable renders doc as an aligned text table. Documents that do not
// implement Tabler fall back to YAML.
func writeTable(out io.Writer, doc any) error {
	t, ok := doc.(Tabler)
	if !ok {
		return NewWriter(FormatYAML, out).Serialize(doc)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	headers := t.TableHeaders()
	for i, h := range headers {
		headers[i] = titleCaser.String(strings.ReplaceAll(h, "_", " "))
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range t.TableRows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return tw.Flush()
}
