package content

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMarkdown_Mappings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"h1", "<h1>제목</h1>", "# 제목"},
		{"h2", "<h2>Sub</h2>", "## Sub"},
		{"h3", "<h3>Deep</h3>", "### Deep"},
		{"bold", "<p><strong>굵게</strong> 그리고 <b>b</b></p>", "**굵게** 그리고 **b**"},
		{"italic", "<p><em>기울임</em> <i>i</i></p>", "*기울임* *i*"},
		{"link", `<a href="https://example.com/x">링크</a>`, "[링크](https://example.com/x)"},
		{"image", `<img src="https://img.example.com/a.png" alt="사진">`, "![사진](https://img.example.com/a.png)"},
		{"br", "첫째<br>둘째<br/>셋째", "첫째\n둘째\n셋째"},
		{"paragraphs", "<p>하나</p><p>둘</p>", "하나\n둘"},
		{"unknown tags stripped", `<div class="x"><span data-a="1">본문</span><custom-tag>끝</custom-tag></div>`, "본문끝"},
		{"script dropped", "<p>보임</p><script>var a = 1 < 2;</script><style>p{}</style>", "보임"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToMarkdown(tt.in))
		})
	}
}

func TestToMarkdown_NoResidualBrackets(t *testing.T) {
	in := `<section><table><tr><td>a &lt; b</td></tr></table><x-widget>w</x-widget> 3 > 2 <iframe src="x"></iframe></section>`
	out := ToMarkdown(in)
	assert.NotContains(t, out, "<")
	assert.NotContains(t, out, ">")
	assert.Contains(t, out, "a &lt; b")
}

func TestToMarkdown_Deterministic(t *testing.T) {
	in := `<h2>T</h2><p>본문 <a href="/PostView.naver?logNo=1"><b>굵은 링크</b></a></p><p></p><p></p><p></p><p>끝</p>`
	first := ToMarkdown(in)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, ToMarkdown(in))
	}
	assert.Contains(t, first, "[**굵은 링크**](/PostView.naver?logNo=1)")
}

func TestToMarkdown_CollapsesBlankRuns(t *testing.T) {
	in := "<p>위</p>\n\n\n\n\n<p>아래</p>"
	out := ToMarkdown(in)
	assert.NotContains(t, out, "\n\n\n")
	assert.True(t, strings.HasPrefix(out, "위"))
	assert.True(t, strings.HasSuffix(out, "아래"))
}

func TestCleanText_NoiseFilters(t *testing.T) {
	raw := strings.Join([]string{
		"  오늘은 날씨가 좋았다.  ",
		"",
		"12,345",
		"2024. 1. 15. 10:30",
		"OK",
		"ab",
		"좋아",
		"Hello world from Seoul",
	}, "\n")

	got := CleanText(raw)
	assert.Equal(t, "오늘은 날씨가 좋았다.\n좋아\nHello world from Seoul", got)
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount("   "))
	assert.Equal(t, 4, WordCount("하나 둘\n셋\t넷"))
}

func TestExtractBody(t *testing.T) {
	markup := `<div class="se-main-container">
		<h2>여행 기록</h2>
		<p>부산에 다녀왔습니다. 바다가 정말 예뻤어요.</p>
		<nav>이전글 다음글</nav>
		<div class="se-image"><img data-src="//postfiles.pstatic.net/a.jpg"></div>
		<p><a href="/PostView.naver?blogId=alice&amp;logNo=223456789012">지난 글</a></p>
		<p><a href="javascript:void(0)">공유</a></p>
		<div class="comment_area">댓글 영역입니다</div>
		<button>공감</button>
		<p>2024. 1. 15. 10:30</p>
	</div>`

	body, err := ExtractBody(markup, "")
	require.NoError(t, err)

	assert.Contains(t, body.PlainText, "부산에 다녀왔습니다.")
	assert.NotContains(t, body.PlainText, "이전글")
	assert.NotContains(t, body.PlainText, "댓글 영역")
	assert.NotContains(t, body.PlainText, "공감")
	assert.NotContains(t, body.PlainText, "2024. 1. 15.")
	assert.Equal(t, WordCount(body.PlainText), body.WordCount)

	assert.Equal(t, []string{"https://postfiles.pstatic.net/a.jpg"}, body.ImageURLs)
	assert.Equal(t, []string{"https://m.blog.naver.com/PostView.naver?blogId=alice&logNo=223456789012"}, body.LinkURLs)

	assert.Equal(t, markup, body.RawMarkup)
	assert.Contains(t, body.Markdown, "## 여행 기록")
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse(DefaultBaseURL)
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"/alice/1", "https://m.blog.naver.com/alice/1", true},
		{"https://blog.naver.com/x", "https://blog.naver.com/x", true},
		{"#top", "", false},
		{"mailto:a@b.c", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveURL(base, tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
