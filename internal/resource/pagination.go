package resource

import (
	"context"
	"fmt"
	"strings"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
)

const (
	DefaultPageSize    = 200
	DefaultMaxRequests = 30
)

// PageOptions bound a list walk.
type PageOptions struct {
	PageSize    int
	MaxRequests int
}

func (o PageOptions) normalized() PageOptions {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxRequests <= 0 {
		o.MaxRequests = DefaultMaxRequests
	}
	return o
}

// ListURL renders the list URL of endpoint for one page.
func (c *Client) ListURL(endpoint string, limit, offset int) string {
	return fmt.Sprintf("%s/%s?limit=%d&offset=%d", c.baseURL, strings.Trim(endpoint, "/"), limit, offset)
}

// FetchAllFromEndpoint walks every page of endpoint. It stops on the first
// short page, or after MaxRequests pages as a guard against endless upstream
// pagination, in which case the result may be incomplete.
func (c *Client) FetchAllFromEndpoint(ctx context.Context, endpoint string, mode domain.Mode, opts PageOptions) ([]domain.NamedResourceRef, error) {
	opts = opts.normalized()
	policy := c.policies[mode]

	var all []domain.NamedResourceRef
	for req := 0; req < opts.MaxRequests; req++ {
		if req > 0 {
			if err := c.sleep(ctx, policy.PageDelay); err != nil {
				return nil, err
			}
		}
		url := c.ListURL(endpoint, opts.PageSize, req*opts.PageSize)
		var page domain.ResourceList
		if err := c.FetchInto(ctx, url, mode, &page); err != nil {
			return nil, fmt.Errorf("list %s: %w", endpoint, err)
		}
		all = append(all, page.Results...)
		if len(page.Results) < opts.PageSize {
			c.log.DebugObj("endpoint listed", "list_meta", map[string]any{
				"endpoint": endpoint,
				"items":    len(all),
				"requests": req + 1,
			})
			return all, nil
		}
	}

	c.log.WarnObj("pagination stopped at request cap; listing may be incomplete", "list_cap", map[string]any{
		"endpoint":     endpoint,
		"items":        len(all),
		"max_requests": opts.MaxRequests,
	})
	return all, nil
}
