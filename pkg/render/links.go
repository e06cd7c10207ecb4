package render

import (
	"context"
	"fmt"

	"contact-scraper/pkg/utils"
)

// LinkData is the text and raw href of an anchor element
type LinkData struct {
	Text string
	Href string
}

// LinkResult is the outcome of reading one anchor. Exactly one of Data or Err is meaningful.
type LinkResult struct {
	Data LinkData
	Err  error
}

// ReadLinks reads text and href from each element. keep, if non-nil, filters on the raw
// href before the text is read so unrelated anchors cost a single read.
// A failed read yields a result with Err wrapping utils.ErrElementRead; it never aborts the batch.
func ReadLinks(ctx context.Context, elems []Element, keep func(href string) bool) []LinkResult {
	results := make([]LinkResult, 0, len(elems))
	for i, el := range elems {
		if ctx.Err() != nil {
			results = append(results, LinkResult{Err: fmt.Errorf("%w: element %d: %w", utils.ErrElementRead, i, ctx.Err())})
			break
		}
		href, err := el.Attribute(ctx, "href")
		if err != nil {
			results = append(results, LinkResult{Err: fmt.Errorf("%w: element %d href: %w", utils.ErrElementRead, i, err)})
			continue
		}
		if keep != nil && !keep(href) {
			continue
		}
		text, err := el.Text(ctx)
		if err != nil {
			results = append(results, LinkResult{Err: fmt.Errorf("%w: element %d text: %w", utils.ErrElementRead, i, err)})
			continue
		}
		results = append(results, LinkResult{Data: LinkData{Text: text, Href: href}})
	}
	return results
}
