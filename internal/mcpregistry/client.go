package mcpregistry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lucidloop/deskagent/internal/errkind"
)

const officialBaseURL = "https://registry.modelcontextprotocol.io/v0.1/servers"

// defaultMirrorBaseURL is the generic fallback used when a Client is
// constructed without an explicit mirror; callers pointing at a specific
// commercial mirror should set Client.MirrorBaseURL instead.
const defaultMirrorBaseURL = "https://registry.mirror.example/servers"

// Client discovers MCP servers from the official registry and, when
// configured with a bearer key, from a mirror registry.
type Client struct {
	HTTPClient      *http.Client
	OfficialBaseURL string
	MirrorBaseURL   string
}

// New returns a Client targeting the official registry with a 10 second
// request timeout, matching the teacher's provider clients' default
// timeout ballpark.
func New() *Client {
	return &Client{
		HTTPClient:      &http.Client{Timeout: 10 * time.Second},
		OfficialBaseURL: officialBaseURL,
		MirrorBaseURL:   defaultMirrorBaseURL,
	}
}

// SearchOfficial performs a server-side search against the official
// registry and returns entries verbatim (not yet deduplicated).
func (c *Client) SearchOfficial(ctx context.Context, query string) ([]Entry, error) {
	u := c.OfficialBaseURL + "?search=" + url.QueryEscape(query) + "&limit=100"
	return c.fetchOfficial(ctx, u)
}

// FetchOfficial lists the official registry without a search filter, for
// browsing.
func (c *Client) FetchOfficial(ctx context.Context) ([]Entry, error) {
	u := c.OfficialBaseURL + "?limit=100"
	return c.fetchOfficial(ctx, u)
}

func (c *Client) fetchOfficial(ctx context.Context, u string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Internal, "build official registry request")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Network, "fetch official registry")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errkind.New(errkind.Network, "official registry returned %s", resp.Status)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errkind.Wrap(err, errkind.Protocol, "parse official registry response")
	}
	return payload.Servers, nil
}

// FetchMirror queries the bearer-authenticated mirror registry. key is
// resolved via secretstore.ResolveKeyOrPath semantics by the caller before
// being passed in here.
func (c *Client) FetchMirror(ctx context.Context, query, key string) ([]Entry, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errkind.New(errkind.Auth, "mirror registry key required")
	}

	u := c.MirrorBaseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Internal, "build mirror registry request")
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Network, "fetch mirror registry")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errkind.New(errkind.Network, "mirror registry returned %s", resp.Status)
	}

	var payload mirrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errkind.Wrap(err, errkind.Protocol, "parse mirror registry response")
	}
	return mirrorEntriesToOfficial(payload.Servers), nil
}

// mirrorResponse is the mirror registry's flatter payload shape: a list
// of hosted, remote-only servers rather than the official registry's
// package/remote union.
type mirrorResponse struct {
	Servers []mirrorServer `json:"servers"`
}

type mirrorServer struct {
	ID            string `json:"id"`
	QualifiedName string `json:"qualifiedName"`
	DisplayName   string `json:"displayName"`
	Description   string `json:"description"`
	Verified      bool   `json:"verified"`
	UseCount      int64  `json:"useCount"`
	Remote        bool   `json:"remote"`
	IsDeployed    bool   `json:"isDeployed"`
	Homepage      string `json:"homepage"`
}

// mirrorEntriesToOfficial adapts the mirror's hosted-server shape into the
// official Entry shape so downstream conversion code has one input type.
// Mirror servers that advertise a remote endpoint are marked with a
// synthetic "mirror-oauth" remote type since the mirror's search API does
// not report specific auth requirements.
func mirrorEntriesToOfficial(servers []mirrorServer) []Entry {
	entries := make([]Entry, 0, len(servers))
	for _, s := range servers {
		var remotes []Remote
		if s.Remote {
			remotes = []Remote{{
				Type: "mirror-oauth",
				URL:  "https://mirror.example/servers/" + s.QualifiedName,
			}}
		}
		meta, _ := json.Marshal(map[string]interface{}{
			"source":         "mirror",
			"qualified_name": s.QualifiedName,
			"verified":       s.Verified,
			"use_count":      s.UseCount,
		})
		entries = append(entries, Entry{
			Server: Server{
				Name:        s.DisplayName,
				Description: s.Description,
				Version:     "latest",
				Remotes:     remotes,
			},
			Meta: meta,
		})
	}
	return entries
}

// Search fetches the official registry and deduplicates by server name,
// filtering client-side on name, description, or repository URL.
func (c *Client) Search(ctx context.Context, query string) (SearchResult, error) {
	all, err := c.FetchOfficial(ctx)
	if err != nil {
		return SearchResult{}, err
	}

	lower := strings.ToLower(query)
	seen := map[string]bool{}
	var deduped []Entry
	for _, e := range all {
		if !matches(e, lower) {
			continue
		}
		if seen[e.Server.Name] {
			continue
		}
		seen[e.Server.Name] = true
		deduped = append(deduped, e)
	}

	return SearchResult{Entries: deduped, Source: SourceOfficial}, nil
}

func matches(e Entry, lowerQuery string) bool {
	if lowerQuery == "" {
		return true
	}
	if strings.Contains(strings.ToLower(e.Server.Name), lowerQuery) {
		return true
	}
	if strings.Contains(strings.ToLower(e.Server.Description), lowerQuery) {
		return true
	}
	if strings.Contains(strings.ToLower(e.Server.Repository.URL), lowerQuery) {
		return true
	}
	return false
}

// SearchRegistry searches either the official registry (server-side
// search, then name dedup) or the mirror (caller-supplied key required).
func (c *Client) SearchRegistry(ctx context.Context, query string, source Source, mirrorKey string) (SearchResult, error) {
	switch source {
	case SourceOfficial:
		results, err := c.SearchOfficial(ctx, query)
		if err != nil {
			return SearchResult{}, err
		}
		seen := map[string]bool{}
		var deduped []Entry
		for _, e := range results {
			if seen[e.Server.Name] {
				continue
			}
			seen[e.Server.Name] = true
			deduped = append(deduped, e)
		}
		return SearchResult{Entries: deduped, Source: SourceOfficial}, nil
	case SourceMirror:
		entries, err := c.FetchMirror(ctx, query, mirrorKey)
		if err != nil {
			return SearchResult{}, err
		}
		return SearchResult{Entries: entries, Source: SourceMirror}, nil
	default:
		return SearchResult{}, errkind.New(errkind.Internal, "unknown registry source %q", source)
	}
}
