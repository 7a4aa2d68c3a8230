package registry

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// PackageVersion is a single published version of a registry package.
type PackageVersion struct {
	Version         string   `json:"version"`
	DownloadURL     string   `json:"download_url"`
	FileSize        int64    `json:"file_size"`
	CreatedAt       string   `json:"created_at"`
	Changelog       string   `json:"changelog"`
	Dependencies    []string `json:"dependencies"`
	MinPanelVersion string   `json:"min_panel_version"`
	MaxPanelVersion string   `json:"max_panel_version"`
}

// Package is a registry package listing entry.
type Package struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	DisplayName   string          `json:"display_name"`
	Description   string          `json:"description"`
	IconURL       string          `json:"icon_url"`
	Website       string          `json:"website"`
	Author        string          `json:"author"`
	AuthorEmail   string          `json:"author_email"`
	Maintainers   []string        `json:"maintainers"`
	Tags          []string        `json:"tags"`
	Verified      bool            `json:"verified"`
	Premium       bool            `json:"premium"`
	PremiumLink   string          `json:"premium_link"`
	PremiumPrice  string          `json:"premium_price"`
	Downloads     int             `json:"downloads"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
	LatestVersion *PackageVersion `json:"latest_version"`
}

// Pagination mirrors the registry list envelope's pagination block.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// PackageList is the result of a list or tag query.
type PackageList struct {
	Packages   []Package  `json:"packages"`
	Pagination Pagination `json:"pagination"`
	Tag        string     `json:"tag,omitempty"`
}

// PackageDetails is the result of a single-package lookup.
type PackageDetails struct {
	Package       Package          `json:"package"`
	Versions      []PackageVersion `json:"versions"`
	LatestVersion *PackageVersion  `json:"latest_version"`
}

// Client talks to the addon registry.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a registry client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// BaseURL returns the configured registry base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// get performs a GET against the registry, reads the body, and returns it
// with the HTTP status code.
func (c *Client) get(path string) (int, []byte, error) {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read registry response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// ErrNotFound is returned when the registry reports an unknown package.
var ErrNotFound = fmt.Errorf("package not found")

// ListPackages fetches a page of packages, optionally filtered by a search
// string.
func (c *Client) ListPackages(page int, search string) (*PackageList, error) {
	path := fmt.Sprintf("/packages?page=%d", page)
	if search != "" {
		path += "&search=" + url.QueryEscape(search)
	}

	status, body, err := c.get(path)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", status)
	}

	var result struct {
		Data PackageList `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse registry response: %w", err)
	}

	c.normalizePackages(result.Data.Packages)
	return &result.Data, nil
}

// GetPackage fetches a single package with its version history.
func (c *Client) GetPackage(identifier string) (*PackageDetails, error) {
	status, body, err := c.get("/packages/" + url.PathEscape(identifier))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", status)
	}

	var result struct {
		Data PackageDetails `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse registry response: %w", err)
	}

	c.normalizePackage(&result.Data.Package)
	if result.Data.LatestVersion != nil {
		result.Data.LatestVersion.DownloadURL = c.absoluteURL(result.Data.LatestVersion.DownloadURL)
	}
	for i := range result.Data.Versions {
		result.Data.Versions[i].DownloadURL = c.absoluteURL(result.Data.Versions[i].DownloadURL)
	}
	return &result.Data, nil
}

// PopularPackages fetches the most-downloaded packages. The registry is
// asked to sort, and the result is re-sorted locally in case it does not.
func (c *Client) PopularPackages(limit int) ([]Package, error) {
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	path := fmt.Sprintf("/packages?page=1&per_page=%d&sort_by=downloads&sort_order=DESC", limit)
	status, body, err := c.get(path)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", status)
	}

	var result struct {
		Data PackageList `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse registry response: %w", err)
	}

	pkgs := result.Data.Packages
	sort.Slice(pkgs, func(i, j int) bool {
		return pkgs[i].Downloads > pkgs[j].Downloads
	})
	c.normalizePackages(pkgs)
	return pkgs, nil
}

// SearchByTag fetches packages carrying the given tag.
func (c *Client) SearchByTag(tag string) (*PackageList, error) {
	status, body, err := c.get("/packages/tag/" + url.PathEscape(tag))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", status)
	}

	var result struct {
		Data PackageList `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse registry response: %w", err)
	}

	c.normalizePackages(result.Data.Packages)
	return &result.Data, nil
}

// Download fetches a package archive. The download URL may be relative to
// the registry origin. Archive downloads get a longer timeout than metadata
// calls.
func (c *Client) Download(downloadURL string) ([]byte, error) {
	req, err := http.NewRequest("GET", c.absoluteURL(downloadURL), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return data, nil
}

// absoluteURL prefixes relative registry URLs with the registry origin.
func (c *Client) absoluteURL(u string) string {
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return c.origin() + u
}

// origin strips any path component from the base URL, since download URLs
// are relative to the registry host rather than the API prefix.
func (c *Client) origin() string {
	parsed, err := url.Parse(c.baseURL)
	if err != nil || parsed.Scheme == "" {
		return c.baseURL
	}
	return parsed.Scheme + "://" + parsed.Host
}

func (c *Client) normalizePackages(pkgs []Package) {
	for i := range pkgs {
		c.normalizePackage(&pkgs[i])
	}
}

// normalizePackage upgrades plain-http icon URLs and resolves relative
// download URLs.
func (c *Client) normalizePackage(p *Package) {
	if strings.HasPrefix(p.IconURL, "http://") {
		p.IconURL = "https://" + strings.TrimPrefix(p.IconURL, "http://")
	}
	if p.LatestVersion != nil {
		p.LatestVersion.DownloadURL = c.absoluteURL(p.LatestVersion.DownloadURL)
	}
}
