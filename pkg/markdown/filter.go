// Package markdown strips Markdown formatting from model replies so they can
// be read aloud by a speech synthesizer.
package markdown

import (
	"regexp"
	"strings"
)

// Options 控制过滤行为
type Options struct {
	// KeepImageAlt 保留图片的 alt 文本，默认整张图片丢弃
	KeepImageAlt bool
	// KeepURLs 保留裸露的 http(s) 链接，默认丢弃
	KeepURLs bool
	// KeepNewlines 保留换行，默认把所有空白折叠成一个空格
	KeepNewlines bool
}

var patterns struct {
	codeBlock      *regexp.Regexp
	inlineCode     *regexp.Regexp
	bold           *regexp.Regexp
	italic         *regexp.Regexp
	strikeThrough  *regexp.Regexp
	headerAtx      *regexp.Regexp
	headerSetext   *regexp.Regexp
	image          *regexp.Regexp
	link           *regexp.Regexp
	bareURL        *regexp.Regexp
	html           *regexp.Regexp
	blockquote     *regexp.Regexp
	listLeader     *regexp.Regexp
	hr             *regexp.Regexp
	footnote       *regexp.Regexp
	tableSeparator *regexp.Regexp
	tablePipe      *regexp.Regexp
	blankLines     *regexp.Regexp
	spaces         *regexp.Regexp
}

func init() {
	// 强调类的模式不跨行，避免把列表符号当成斜体
	patterns.codeBlock = regexp.MustCompile("```[\\s\\S]*?```")
	patterns.inlineCode = regexp.MustCompile("`([^`\n]+)`")
	patterns.bold = regexp.MustCompile(`(\*\*|__)([^\n*_]+)(\*\*|__)`)
	patterns.italic = regexp.MustCompile(`(^|[^\w*])[*_]([^\n*_]+)[*_]`)
	patterns.strikeThrough = regexp.MustCompile(`~~([^\n~]+)~~`)
	patterns.headerAtx = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*#*$`)
	patterns.headerSetext = regexp.MustCompile(`(?m)^\s*(=+|-{2,})\s*$`)
	patterns.image = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	patterns.link = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	patterns.bareURL = regexp.MustCompile(`https?://\S+`)
	patterns.html = regexp.MustCompile(`<[^>]+>`)
	patterns.blockquote = regexp.MustCompile(`(?m)^\s*>\s?`)
	patterns.listLeader = regexp.MustCompile(`(?m)^\s*([*\-+]|\d+[.)])\s+`)
	patterns.hr = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
	patterns.footnote = regexp.MustCompile(`\[\^[^\]]+\]`)
	patterns.tableSeparator = regexp.MustCompile(`(?m)^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?\s*$`)
	patterns.tablePipe = regexp.MustCompile(`\s*\|\s*`)
	patterns.blankLines = regexp.MustCompile(`\n{3,}`)
	patterns.spaces = regexp.MustCompile(`\s+`)
}

// Filter 去掉 Markdown 标记，返回适合朗读的纯文本
func Filter(text string) string {
	return FilterWithOptions(text, Options{})
}

// FilterWithOptions 按 opts 去掉 Markdown 标记
func FilterWithOptions(text string, opts Options) string {
	if text == "" {
		return ""
	}
	result := patterns.codeBlock.ReplaceAllString(text, " ")

	// 行首结构先处理，避免列表符号被当成斜体
	result = patterns.hr.ReplaceAllString(result, "")
	result = patterns.headerAtx.ReplaceAllString(result, "$1")
	result = patterns.headerSetext.ReplaceAllString(result, "")
	result = patterns.tableSeparator.ReplaceAllString(result, "")
	result = patterns.blockquote.ReplaceAllString(result, "")
	result = patterns.listLeader.ReplaceAllString(result, "")

	if opts.KeepImageAlt {
		result = patterns.image.ReplaceAllString(result, "$1")
	} else {
		result = patterns.image.ReplaceAllString(result, "")
	}
	result = patterns.link.ReplaceAllString(result, "$1")
	if !opts.KeepURLs {
		result = patterns.bareURL.ReplaceAllString(result, "")
	}

	result = patterns.bold.ReplaceAllString(result, "$2")
	result = patterns.strikeThrough.ReplaceAllString(result, "$1")
	result = patterns.italic.ReplaceAllString(result, "$1$2")
	result = patterns.inlineCode.ReplaceAllString(result, "$1")

	result = patterns.html.ReplaceAllString(result, "")
	result = patterns.footnote.ReplaceAllString(result, "")
	result = tableRows(result)

	if opts.KeepNewlines {
		result = patterns.blankLines.ReplaceAllString(result, "\n\n")
		return strings.TrimSpace(result)
	}
	return strings.TrimSpace(patterns.spaces.ReplaceAllString(result, " "))
}

// tableRows 把 "| a | b |" 变成 "a, b"
func tableRows(text string) string {
	if !strings.Contains(text, "|") {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "|") || !strings.HasSuffix(trimmed, "|") {
			continue
		}
		cells := patterns.tablePipe.Split(strings.Trim(trimmed, "|"), -1)
		kept := cells[:0]
		for _, c := range cells {
			if c = strings.TrimSpace(c); c != "" {
				kept = append(kept, c)
			}
		}
		lines[i] = strings.Join(kept, ", ")
	}
	return strings.Join(lines, "\n")
}
