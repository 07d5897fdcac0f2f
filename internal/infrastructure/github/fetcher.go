// Package github adapts the GitHub Dependabot alerts API to
// ports.AlertFetcher. Alerts are fetched as raw JSON documents so the
// provider payload reaches the normalizer verbatim.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"depwatch/internal/bootstrap/config"
	"depwatch/internal/errs"
)

const alertsPerPage = 100

type Fetcher struct {
	client *gogithub.Client
}

// NewFetcher builds a fetcher from the github config section. Auth modes, in
// order: GitHub App installation, personal access token, anonymous.
func NewFetcher(ctx context.Context, cfg config.GitHubConfig) (*Fetcher, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	httpClient, err := buildHTTPClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := gogithub.NewClient(httpClient)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		client, err = client.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, errs.Wrap(err, "configure github base url")
		}
	}

	return &Fetcher{client: client}, nil
}

func buildHTTPClient(ctx context.Context, cfg config.GitHubConfig) (*http.Client, error) {
	if cfg.AppID != 0 && cfg.InstallationID != 0 && strings.TrimSpace(cfg.PrivateKeyPath) != "" {
		transport, err := ghinstallation.NewKeyFromFile(
			http.DefaultTransport,
			cfg.AppID,
			cfg.InstallationID,
			cfg.PrivateKeyPath,
		)
		if err != nil {
			return nil, errs.Wrap(err, "build github app transport")
		}
		return &http.Client{Transport: transport}, nil
	}

	if token := strings.TrimSpace(cfg.Token); token != "" {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})), nil
	}

	return nil, nil
}

// FetchRawAlerts pages through repos/{repo}/dependabot/alerts and returns
// every alert payload verbatim. Any transport or API error fails the whole
// fetch; partial pages are never returned.
func (f *Fetcher) FetchRawAlerts(ctx context.Context, repo string) ([]json.RawMessage, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	repo = strings.TrimSpace(repo)
	if repo == "" || !strings.Contains(repo, "/") {
		return nil, fmt.Errorf("repo %q is not in owner/name form", repo)
	}

	var alerts []json.RawMessage
	page := 1
	for {
		url := fmt.Sprintf("repos/%s/dependabot/alerts?state=all&per_page=%d&page=%d", repo, alertsPerPage, page)
		req, err := f.client.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, errs.Wrap(err, "build dependabot alerts request")
		}

		var batch []json.RawMessage
		resp, err := f.client.Do(ctx, req, &batch)
		if err != nil {
			return nil, errs.Wrapf(err, "fetch dependabot alerts for %s page %d", repo, page)
		}

		alerts = append(alerts, batch...)
		if resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}

	return alerts, nil
}
