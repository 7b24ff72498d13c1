// Package github calls the GitHub REST API on behalf of a signed-in user.
//
// The user's access token comes from the front end's GitHub sign-in and is
// stored on the user record. golang.org/x/oauth2 turns it into an
// *http.Client that adds "Authorization: Bearer <token>" to every request.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/readme-studio/internal/apperror"
	"github.com/sakif/readme-studio/internal/model"
)

const (
	// DefaultBaseURL is the public GitHub API.
	DefaultBaseURL = "https://api.github.com"

	perPage = 100
	// maxPages caps a listing at 1000 repositories.
	maxPages = 10
)

// apiRepo is the portion of GitHub's repository object we care about.
type apiRepo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	HTMLURL  string `json:"html_url"`
}

type apiError struct {
	Message string `json:"message"`
}

// Client lists repositories through the GitHub REST API.
type Client struct {
	baseURL string
	base    *http.Client
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL; a
// zero timeout leaves the transport default in place.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		base:    &http.Client{Timeout: timeout},
	}
}

// ListRepos returns every repository the token's owner can access, most
// recently updated first.
//
// Failures reported by GitHub are returned as apperror.ErrUpstream with
// GitHub's own message embedded.
func (c *Client) ListRepos(ctx context.Context, token string) ([]model.Repo, error) {
	if token == "" {
		return nil, errors.New("github: empty access token")
	}

	// oauth2.NewClient reuses c.base (and its timeout) as the underlying
	// transport when it is stored in the context under oauth2.HTTPClient.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	repos := make([]model.Repo, 0, perPage)
	for page := 1; page <= maxPages; page++ {
		batch, err := c.listPage(ctx, client, page)
		if err != nil {
			return nil, err
		}
		for _, r := range batch {
			repos = append(repos, model.Repo{
				Name:     r.Name,
				FullName: r.FullName,
				Private:  r.Private,
				URL:      r.HTMLURL,
			})
		}
		if len(batch) < perPage {
			break
		}
	}
	return repos, nil
}

func (c *Client) listPage(ctx context.Context, client *http.Client, page int) ([]apiRepo, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	q.Set("sort", "updated")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user/repos?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("github: building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperror.Upstream("github", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, apperror.Upstream("github", fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Message))
	}

	var batch []apiRepo
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, apperror.Upstream("github", fmt.Errorf("decoding /user/repos response: %w", err))
	}
	return batch, nil
}
