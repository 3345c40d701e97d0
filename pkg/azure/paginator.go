package azure

import (
	"context"
	"encoding/json"
	"fmt"
)

// maxPages is a defensive cap preventing infinite loops should a provider
// return a malformed continuation token.
const maxPages = 2048

// Page is one page of a paginated listing.
type Page struct {
	Items    []json.RawMessage
	NextLink string
}

// Pager follows the continuation links of a paginated listing, fetching one
// page per NextPage call. It handles both the ARM "nextLink" and the Graph
// "@odata.nextLink" field.
type Pager struct {
	rc    *RunContext
	call  CallSpec
	next  string
	pages int
	done  bool

	// pageCap is lowered in tests.
	pageCap int
}

func (rc *RunContext) NewPager(call CallSpec) *Pager {
	return &Pager{rc: rc, call: call, pageCap: maxPages}
}

// More reports whether another page is available. It is true before the
// first fetch.
func (p *Pager) More() bool {
	return !p.done
}

// NextPage fetches the next page. Exactly one call to the transport is made
// per invocation (through the version resolver when the endpoint is
// version-sensitive).
func (p *Pager) NextPage(ctx context.Context) (Page, error) {
	if p.done {
		return Page{}, fmt.Errorf("pager for %s is exhausted", p.call.Path)
	}
	if p.pages >= p.pageCap {
		p.done = true
		return Page{}, &PaginationLoopError{Pages: p.pages, Path: p.call.Path}
	}

	call := p.call
	if p.next != "" {
		// Continuation URLs are complete, version and query included.
		call = CallSpec{Audience: p.call.Audience, Method: p.call.Method, Path: p.next}
	}

	body, _, err := p.rc.FetchWithBestVersion(ctx, call)
	if err != nil {
		p.done = true
		return Page{}, err
	}
	p.pages++

	var envelope struct {
		Value         []json.RawMessage `json:"value"`
		NextLink      string            `json:"nextLink"`
		ODataNextLink string            `json:"@odata.nextLink"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		p.done = true
		return Page{}, fmt.Errorf("decoding page %d of %s: %w", p.pages, p.call.Path, err)
	}

	page := Page{Items: envelope.Value, NextLink: envelope.NextLink}
	if page.NextLink == "" {
		page.NextLink = envelope.ODataNextLink
	}

	p.next = page.NextLink
	if p.next == "" {
		p.done = true
	}
	return page, nil
}
