package repo

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// EnsureRepoExists checks whether the configured org/repo exists, creating
// it under the org when it does not.
func (c *Client) EnsureRepoExists(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.repoURL(), nil)
	if err != nil {
		return fmt.Errorf("check repo existence: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return c.createRepo(ctx)
	default:
		return fmt.Errorf("check repo existence: unexpected status %d", resp.StatusCode)
	}
}

type createRepoBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	AutoInit    bool   `json:"auto_init"`
}

func (c *Client) createRepo(ctx context.Context) error {
	url := fmt.Sprintf("%s/orgs/%s/repos", c.baseURL, c.org)
	body := createRepoBody{
		Name:        c.repo,
		Description: "Self-evolving agent system",
		Private:     false,
		AutoInit:    true,
	}
	resp, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("create repo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("create repo: unexpected status %d", resp.StatusCode)
	}
	c.logger.Info("created repo", zap.String("org", c.org), zap.String("repo", c.repo))
	return nil
}

type refObject struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type createRefBody struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// CreateBranch creates branchName from the tip of fromBranch. Returns nil
// if the branch already exists.
func (c *Client) CreateBranch(ctx context.Context, branchName, fromBranch string) error {
	refURL := fmt.Sprintf("%s/git/ref/heads/%s", c.repoURL(), fromBranch)
	resp, err := c.do(ctx, http.MethodGet, refURL, nil)
	if err != nil {
		return fmt.Errorf("look up %s ref: %w", fromBranch, err)
	}
	var ref refObject
	decodeErr := decodeAndClose(resp, &ref)
	if decodeErr != nil {
		return fmt.Errorf("decode %s ref: %w", fromBranch, decodeErr)
	}

	createURL := fmt.Sprintf("%s/git/refs", c.repoURL())
	createResp, err := c.do(ctx, http.MethodPost, createURL, createRefBody{
		Ref: "refs/heads/" + branchName,
		SHA: ref.Object.SHA,
	})
	if err != nil {
		return fmt.Errorf("create branch %s: %w", branchName, err)
	}
	defer createResp.Body.Close()

	if createResp.StatusCode == http.StatusUnprocessableEntity {
		c.logger.Info("branch already exists", zap.String("branch", branchName))
		return nil
	}
	if createResp.StatusCode >= 300 {
		return fmt.Errorf("create branch %s: unexpected status %d", branchName, createResp.StatusCode)
	}
	c.logger.Info("created branch", zap.String("branch", branchName), zap.String("from", fromBranch))
	return nil
}

type mergeBody struct {
	Base          string `json:"base"`
	Head          string `json:"head"`
	CommitMessage string `json:"commit_message"`
}

// MergeBranch merges branchName into the target branch.
func (c *Client) MergeBranch(ctx context.Context, branchName, into, message string) error {
	if message == "" {
		message = fmt.Sprintf("Merge %s into %s", branchName, into)
	}
	url := fmt.Sprintf("%s/merges", c.repoURL())
	resp, err := c.do(ctx, http.MethodPost, url, mergeBody{Base: into, Head: branchName, CommitMessage: message})
	if err != nil {
		return fmt.Errorf("merge %s into %s: %w", branchName, into, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		c.logger.Info("nothing to merge, already up to date", zap.String("branch", branchName))
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("merge %s into %s: unexpected status %d", branchName, into, resp.StatusCode)
	}
	c.logger.Info("merged branch", zap.String("branch", branchName), zap.String("into", into))
	return nil
}

// DeleteBranch deletes branchName.
func (c *Client) DeleteBranch(ctx context.Context, branchName string) error {
	url := fmt.Sprintf("%s/git/refs/heads/%s", c.repoURL(), branchName)
	resp, err := c.do(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("delete branch %s: %w", branchName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete branch %s: unexpected status %d", branchName, resp.StatusCode)
	}
	c.logger.Info("deleted branch", zap.String("branch", branchName))
	return nil
}
