package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/settlement"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
)

// Renderer produces one variant format.
type Renderer interface {
	Format() string
	Render(ctx context.Context, report *Report, s *settlement.Settlement) ([]byte, error)
}

// Generator renders every configured variant of a report.
type Generator struct {
	renderers []Renderer
}

// NewGenerator returns a generator for the given renderers, in order.
func NewGenerator(renderers ...Renderer) *Generator {
	return &Generator{renderers: renderers}
}

// NewGeneratorFromConfig selects renderers by PROCESSOR_VARIANT_FORMATS.
func NewGeneratorFromConfig(cfg *config.Config, pdf *PDFClient) (*Generator, error) {
	available := map[string]Renderer{
		FormatPDF: pdf,
		FormatCSV: CSVRenderer{},
	}
	var renderers []Renderer
	for _, f := range cfg.Processor.Formats {
		r, ok := available[f]
		if !ok {
			return nil, fmt.Errorf("unknown variant format %q", f)
		}
		renderers = append(renderers, r)
	}
	if len(renderers) == 0 {
		return nil, fmt.Errorf("no variant formats configured")
	}
	return NewGenerator(renderers...), nil
}

// Formats lists the formats produced, in order.
func (g *Generator) Formats() []string {
	formats := make([]string, len(g.renderers))
	for i, r := range g.renderers {
		formats[i] = r.Format()
	}
	return formats
}

// Generate renders all variants. Any renderer error fails the whole report.
func (g *Generator) Generate(ctx context.Context, report *Report, s *settlement.Settlement) ([]*Variant, error) {
	variants := make([]*Variant, 0, len(g.renderers))
	for _, r := range g.renderers {
		content, err := r.Render(ctx, report, s)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", r.Format(), err)
		}
		variants = append(variants, &Variant{
			Format:   r.Format(),
			Filename: Filename(report, s, r.Format()),
			Content:  content,
			Size:     int64(len(content)),
		})
	}
	return variants, nil
}

// Filename builds the file name of a variant, e.g.
// refusjon_974600019_2025-03-14.pdf.
func Filename(report *Report, s *settlement.Settlement, format string) string {
	return fmt.Sprintf("%s_%s_%s.%s", report.Type, s.OrgNumber, s.ValueDate.Format(time.DateOnly), format)
}
