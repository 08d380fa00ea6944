package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	bravesearch "github.com/cnosuke/go-brave-search"
	"github.com/liuscraft/jowie/internal/chat"
	"github.com/liuscraft/jowie/internal/logging"
)

const maxSearchOutput = 4000

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

type SearchResult struct {
	Title       string
	URL         string
	Description string
}

// Searcher 网页搜索后端
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
}

type SearcherFunc func(ctx context.Context, query string, count int) ([]SearchResult, error)

func (f SearcherFunc) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	return f(ctx, query, count)
}

// BraveSearcher Brave Search API
type BraveSearcher struct {
	client *bravesearch.Client
}

func NewBraveSearcher(apiKey string) (*BraveSearcher, error) {
	client, err := bravesearch.NewClient(apiKey)
	if err != nil {
		return nil, fmt.Errorf("brave client: %w", err)
	}
	return &BraveSearcher{client: client}, nil
}

func (b *BraveSearcher) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	resp, err := b.client.WebSearch(ctx, query, &bravesearch.WebSearchParams{
		Count: count,
	})
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	web := resp.GetWebResults()
	out := make([]SearchResult, 0, len(web))
	for _, r := range web {
		out = append(out, SearchResult{Title: r.Title, URL: r.URL, Description: r.Description})
	}
	return out, nil
}

// NewSearchTool search(query)，返回前 maxResults 条结果
func NewSearchTool(searcher Searcher, maxResults int) Tool {
	if maxResults <= 0 {
		maxResults = 3
	}
	return Tool{
		Spec: chat.ToolSpec{
			Name:        "search",
			Description: "Search the internet for up-to-date information.",
			Params: []chat.Param{{
				Name:        "query",
				Type:        chat.TypeString,
				Description: "The search query",
				Required:    true,
			}},
		},
		Run: func(ctx context.Context, args Args) (string, error) {
			query := strings.TrimSpace(args.String("query"))
			logging.Infof("search: %q", query)

			results, err := searcher.Search(ctx, query, maxResults)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return "No results found.", nil
			}
			if len(results) > maxResults {
				results = results[:maxResults]
			}

			var b strings.Builder
			for i, r := range results {
				if i > 0 {
					b.WriteString("\n\n")
				}
				fmt.Fprintf(&b, "%s\n%s\n%s", r.Title, htmlTagRe.ReplaceAllString(r.Description, ""), r.URL)
			}
			logging.Debugf("search: %q -> %d results", query, len(results))
			return truncate(b.String()), nil
		},
	}
}

// truncate 按字节截断，但不切开多字节字符
func truncate(s string) string {
	if len(s) <= maxSearchOutput {
		return s
	}
	n := maxSearchOutput
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n... (truncated)"
}
