package crawlers

// 移动版博客页面的选择器与脚本
// 站点改版时只需要调整这个文件

var (
	notFoundSelectors = []string{".error", ".not-found", ".error-page"}

	// 列表页
	fullyLoadedSelector  = `button.scroll_top_button__uyAEr[data-click-area="pls.backtotop"]`
	totalCountButtons    = []string{`button[data-click-area="pls.sort"]`, `button.link__dkflP`}
	totalCountSelector   = `em.num_area__d8SvC`
	totalCountCloseInput = `button.btn__PPrNT[aria-label="닫기"]`
	listContainerXPaths  = []string{
		"/html/body/div[1]/div[5]/div[4]",
		"/html/body/div[1]/div[5]/div[2]/div[3]",
	}

	// 文章页
	bodyReadySelector = ".se-main-container, .se-component-content, #postViewArea, .post-view-area, .post-content"
	titleSelectors    = []string{"h1.post_subject", "h1.se-title-text", ".post-title h1", ".post_subject", ".se-title-text", "h1.title", "h1", ".title"}
	authorSelectors   = []string{".nickname", ".author-name", ".blog-author", ".blog_info .nickname"}
	publishedSelector = []string{".se_publishDate", ".publish-date", ".date", ".time__SNGFu", ".desc__k5fQT .time__SNGFu"}
	modifiedSelectors = []string{".se_modifyDate", ".modified-date", ".modify-date"}
	viewSelectors     = []string{".view-count", ".area_viewcount", "[data-view-count]"}
	likeSelectors     = []string{".u_likeit_text._count.num", ".u_likeit_text", ".like-count", ".area_likecount", "[data-like-count]", ".meta_foot__I5IqM .like__vTXys"}
	commentCountSels  = []string{".comment_btn__TUucZ .num__OVfhz", ".num__OVfhz", ".comment-count", ".area_commentcount", "[data-comment-count]", ".meta_foot__I5IqM .comment__bWHnT"}
	categorySelectors = []string{".category", ".area_category", ".se_category"}

	tagExpandSelectors = []string{
		`button.tag__tFC3j.expand_btn__oaNLH[data-click-area="pst.tagmore"]`,
		`button.expand_btn__oaNLH[data-click-area="pst.tagmore"]`,
		`button.expand_btn__oaNLH`,
		`button[data-click-area="pst.tagmore"]`,
	}
	tagSelectors = []string{
		`a.tag__tFC3j[data-click-area="pst.tag"]`,
		`a.tag__tFC3j`,
		`.tag__tFC3j`,
		`.tag-list .tag`,
		`.area_tag a`,
		`.se_tagList a`,
		`.tag-item`,
	}

	commentButtonSelectors = []string{
		`button.comment_btn__TUucZ[data-click-area="pst.re"]`,
		`button.comment_btn__TUucZ`,
		`button[data-click-area*="re"]`,
	}
	commentItemSelector = "li.u_cbox_comment"

	bodyContainerSelectors = []string{
		".se-main-container", ".post-content", ".area_view", ".post-view",
		"#postViewArea", ".post-view-area", ".se-component-content",
		"article", ".post_body", "main", "body",
	}
)

// restrictedCommentMarker 访问受限评论显示的文字
const restrictedCommentMarker = "비밀 댓글입니다"

// scrollHeightJS 列表页当前高度
const scrollHeightJS = `() => document.body.scrollHeight`

// collectHrefsJS 在容器(或整个文档)中按选择器收集链接
// 参数: 容器XPath列表, 选择器, 是否限定在容器内, 链接需匹配的正则(可为空)
const collectHrefsJS = `(xpaths, selector, scoped, pattern) => {
	let roots = [document];
	if (scoped) {
		roots = xpaths
			.map(x => document.evaluate(x, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue)
			.filter(Boolean);
	}
	const re = pattern ? new RegExp(pattern) : null;
	const out = [];
	for (const root of roots) {
		for (const a of root.querySelectorAll(selector)) {
			const href = a.href || a.getAttribute('href') || '';
			if (href && (!re || re.test(href))) out.push(href);
		}
	}
	return out;
}`

// titleScriptJS 在页面中按标题选择器查找第一个非空标题
const titleScriptJS = `(selectors) => {
	for (const sel of selectors) {
		const el = document.querySelector(sel);
		const text = el && (el.innerText || el.textContent || '').trim();
		if (text) return text;
	}
	return '';
}`

// tagScriptJS 标签区域的备用提取: 查找文本以#开头的链接
const tagScriptJS = `() => {
	const out = [];
	for (const a of document.querySelectorAll('a, span')) {
		const text = (a.innerText || a.textContent || '').trim();
		if (/^#[^\s#]{1,40}$/.test(text)) out.push(text);
	}
	return out;
}`

// commentItemsJS 读取已展开的评论
const commentItemsJS = `(selector) => Array.from(document.querySelectorAll(selector)).map(li => {
	const pick = s => { const el = li.querySelector(s); return el ? (el.innerText || el.textContent || '').trim() : ''; };
	return {
		author: pick('span.u_cbox_nick'),
		content: pick('span.u_cbox_contents'),
		raw: (li.innerText || li.textContent || '').trim(),
		secret: li.classList.contains('u_cbox_type_secret'),
	};
})`

// defaultLinkStrategies 从严格到宽松的链接提取策略
func defaultLinkStrategies() []LinkStrategy {
	return []LinkStrategy{
		ScriptLinks{
			Label:  "postlist-container",
			Script: collectHrefsJS,
			Args:   []interface{}{listContainerXPaths, `div.postlist__qxOgF a.link__A4O1D, div.postlist__qxOgF a[data-click-area="pls.textpost"]`, true, ""},
		},
		ScriptLinks{
			Label:  "container-links",
			Script: collectHrefsJS,
			Args:   []interface{}{listContainerXPaths, `a.link__A4O1D, a[data-click-area="pls.textpost"]`, true, ""},
		},
		ScriptLinks{
			Label:  "container-list-items",
			Script: collectHrefsJS,
			Args:   []interface{}{listContainerXPaths, `ul li a[href]`, true, `PostView|logNo=|/\d{8,}`},
		},
		ScriptLinks{
			Label:  "document-numeric",
			Script: collectHrefsJS,
			Args:   []interface{}{listContainerXPaths, `a[href]`, false, `\d{8,}`},
		},
	}
}

// defaultTitleStrategies 标题提取策略
func defaultTitleStrategies() []TextStrategy {
	return []TextStrategy{
		DocumentTitle{MaxLength: 200},
		ScriptText{Label: "title-script", Script: titleScriptJS, Args: []interface{}{titleSelectors}},
		SelectorText{Label: "title-selectors", Selectors: titleSelectors},
		DocumentTitle{Raw: true},
	}
}
