package crawlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordIDFromURL(t *testing.T) {
	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{"https://m.blog.naver.com/PostView.naver?blogId=abc&logNo=223456789012", "223456789012", true},
		{"https://m.blog.naver.com/abc/223456789012", "223456789012", true},
		{"https://blog.naver.com/abc/223456789012?fromRss=true", "223456789012", true},
		{"https://m.blog.naver.com/abc/223456789012#comment", "223456789012", true},
		{"https://m.blog.naver.com/abc", "", false},
		{"https://m.blog.naver.com/abc/2234x#1", "", false},
	}
	for _, tt := range tests {
		got, ok := RecordIDFromURL(tt.url)
		assert.Equal(t, tt.wantOK, ok, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}
}

func TestTargetIDFromURL(t *testing.T) {
	id, ok := TargetIDFromURL("https://m.blog.naver.com/PostView.naver?blogId=Some_Blog&logNo=1")
	assert.True(t, ok)
	assert.Equal(t, "Some_Blog", id)

	id, ok = TargetIDFromURL("https://m.blog.naver.com/someblog/223456789012")
	assert.True(t, ok)
	assert.Equal(t, "someblog", id)

	_, ok = TargetIDFromURL("https://m.blog.naver.com/PostView.naver")
	assert.False(t, ok)
}

func TestCanonicalize(t *testing.T) {
	want := "https://m.blog.naver.com/PostView.naver?blogId=someblog&logNo=223456789012"

	shapes := []string{
		"https://m.blog.naver.com/someblog/223456789012",
		"https://m.blog.naver.com/PostView.naver?blogId=someblog&logNo=223456789012&navType=by",
		"/someblog/223456789012",
		"https://blog.naver.com/SomeBlog/223456789012?fromRss=true",
		"/someblog/223456789012#SE-comment",
	}
	for _, raw := range shapes {
		got, id, ok := Canonicalize(raw, "someblog")
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
		assert.Equal(t, "223456789012", id, raw)
	}

	rejected := []string{
		"",
		"https://m.blog.naver.com/otherblog/223456789012",
		"https://m.blog.naver.com/PostView.naver?blogId=otherblog&logNo=1&ref=someblog",
		"https://m.blog.naver.com/someblog",
	}
	for _, raw := range rejected {
		_, _, ok := Canonicalize(raw, "someblog")
		assert.False(t, ok, raw)
	}
}

func TestCanonicalizeAll_DedupKeepsOrder(t *testing.T) {
	got := CanonicalizeAll([]string{
		"https://m.blog.naver.com/someblog/2",
		"https://m.blog.naver.com/someblog/1",
		"https://m.blog.naver.com/PostView.naver?blogId=someblog&logNo=2",
		"https://m.blog.naver.com/other/3",
	}, "someblog")

	assert.Equal(t, []string{
		PostURL("someblog", "2"),
		PostURL("someblog", "1"),
	}, got)
}

func TestListingURL(t *testing.T) {
	assert.Equal(t, "https://m.blog.naver.com/someblog?categoryNo=0&listStyle=post&tab=1", ListingURL("someblog"))
}
