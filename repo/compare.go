package repo

import (
	"context"
	"fmt"
	"net/http"
)

type compareResponse struct {
	BehindBy int `json:"behind_by"`
	AheadBy  int `json:"ahead_by"`
}

// CommitsBehind reports how many commits head has that base lacks, using
// GitHub's compare API (the compare response's ahead_by: commits in head
// not in base). The heartbeat's repo auto-sync step calls this with
// base=the running process's own build commit and head=the default branch,
// to decide whether a newer version has landed upstream — behind_by would
// instead answer "is the build commit an ancestor of the branch," which is
// ~always true and never drives a sync.
func (c *Client) CommitsBehind(ctx context.Context, base, head string) (int, error) {
	url := fmt.Sprintf("%s/compare/%s...%s", c.repoURL(), base, head)
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("compare %s...%s: %w", base, head, err)
	}
	var data compareResponse
	if err := decodeAndClose(resp, &data); err != nil {
		return 0, fmt.Errorf("decode compare %s...%s: %w", base, head, err)
	}
	return data.AheadBy, nil
}
