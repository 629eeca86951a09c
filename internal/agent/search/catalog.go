package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/Chative-insight/server/internal/agent/model"
)

// Catalog searches the product category catalog, turning matching categories
// into snippets. Exact matches score 1, partial matches 0.5.
type Catalog struct {
	catalog model.CategoryCatalog
}

func NewCatalog(c model.CategoryCatalog) *Catalog {
	return &Catalog{catalog: c}
}

func (c *Catalog) Name() string { return "catalog" }

func (c *Catalog) Search(ctx context.Context, query string, topK int) ([]model.Snippet, error) {
	var out []model.Snippet
	seen := map[string]bool{}
	for _, term := range Terms(query) {
		names, err := c.catalog.LookupCategory(ctx, term)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if seen[n.Portuguese] {
				continue
			}
			seen[n.Portuguese] = true
			score := 0.5
			if strings.EqualFold(n.Portuguese, term) || strings.EqualFold(n.English, term) {
				score = 1
			}
			out = append(out, model.Snippet{
				Text:     fmt.Sprintf("Product category %q (English: %q)", n.Portuguese, n.English),
				Score:    score,
				Source:   c.Name(),
				Metadata: map[string]any{"category": n.Portuguese, "category_english": n.English},
			})
			if topK > 0 && len(out) >= topK {
				return out, nil
			}
		}
	}
	return out, nil
}

var stopwords = map[string]bool{
	"what": true, "is": true, "are": true, "the": true, "a": true, "an": true, "about": true,
	"tell": true, "me": true, "of": true, "in": true, "for": true, "and": true, "does": true,
	"do": true, "mean": true, "this": true, "that": true, "category": true, "categories": true,
	"product": true, "products": true, "how": true, "which": true, "translate": true, "to": true,
	"english": true, "portuguese": true, "please": true, "current": true, "trends": true,
}

// Terms extracts candidate lookup terms from a free-text query: words of three
// or more letters that are not stop words, in query order.
func Terms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127)
	})
	var terms []string
	seen := map[string]bool{}
	for _, f := range fields {
		f = strings.Trim(f, "-_")
		if len([]rune(f)) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

var _ Provider = (*Catalog)(nil)
