// Package content 把文章正文的HTML转换为纯文本、Markdown和资源链接列表
package content

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	blankRunPattern = regexp.MustCompile(`\n[ \t\r]*\n(?:[ \t\r]*\n)+`)
	bracketEscaper  = strings.NewReplacer("<", "&lt;", ">", "&gt;")
)

// ToMarkdown 将HTML片段转换为轻量Markdown
//
// 映射规则: h1-h6 → "#"前缀, strong/b → **, em/i → *, a → [文本](链接),
// img → ![alt](src), br 和 </p> → 换行。script/style 内容丢弃,
// 其余标签去掉只保留文本,3个及以上连续空行折叠为1个。
// 文本中的实体保持原样,不会产生尖括号。
func ToMarkdown(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))

	var out strings.Builder
	// 链接文本需要在闭合时才能输出,用栈保存
	type pendingLink struct {
		href string
		text strings.Builder
	}
	var links []*pendingLink
	skipDepth := 0

	write := func(s string) {
		if len(links) > 0 {
			links[len(links)-1].text.WriteString(s)
			return
		}
		out.WriteString(s)
	}

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF 或者格式错误都在此结束
			break
		}

		switch tt {
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			write(bracketEscaper.Replace(string(z.Raw())))

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			a := atom.Lookup(name)
			attrs := map[string]string{}
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				attrs[string(k)] = string(v)
			}

			switch a {
			case atom.Script, atom.Style, atom.Noscript:
				if tt == html.StartTagToken {
					skipDepth++
				}
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				write("\n" + strings.Repeat("#", headingLevel(a)) + " ")
			case atom.Strong, atom.B:
				write("**")
			case atom.Em, atom.I:
				write("*")
			case atom.Br:
				write("\n")
			case atom.Img:
				src := attrs["src"]
				if src == "" {
					src = attrs["data-src"]
				}
				if src != "" {
					write("![" + bracketEscaper.Replace(attrs["alt"]) + "](" + bracketEscaper.Replace(src) + ")")
				}
			case atom.A:
				if tt == html.StartTagToken {
					links = append(links, &pendingLink{href: bracketEscaper.Replace(attrs["href"])})
				}
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch a {
			case atom.Script, atom.Style, atom.Noscript:
				if skipDepth > 0 {
					skipDepth--
				}
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				write("\n")
			case atom.Strong, atom.B:
				write("**")
			case atom.Em, atom.I:
				write("*")
			case atom.P:
				write("\n")
			case atom.A:
				if len(links) == 0 {
					continue
				}
				link := links[len(links)-1]
				links = links[:len(links)-1]
				write("[" + link.text.String() + "](" + link.href + ")")
			}
		}
	}

	// 未闭合的链接按普通文本输出
	for len(links) > 0 {
		link := links[len(links)-1]
		links = links[:len(links)-1]
		write(link.text.String())
	}

	return strings.TrimSpace(blankRunPattern.ReplaceAllString(out.String(), "\n\n"))
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	default:
		return 6
	}
}
