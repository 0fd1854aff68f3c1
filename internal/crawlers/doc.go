// Package crawlers 提供移动版博客的两阶段抓取
//
// # 概述
//
// 一个目标(作者)的抓取分为两个阶段:先滚动列表页收集全部文章链接,
// 再逐篇打开文章页提取结构化记录。页面操作都通过 PageSession 接口完成,
// 真实实现基于go-rod,测试中使用内存中的假页面。
//
// # 核心组件
//
// ## PageSession / RodSessionFactory
//
// 每个目标一个标签页,目标结束后关闭。整个运行共用一个浏览器进程。
// 打开标签页前由 ResourceMonitor 检查主机内存和CPU,导航由 rate.Limiter 节流。
//
//	factory := NewRodSessionFactory(true, headers, 1.0, NewResourceMonitor(DefaultResourceMonitorConfig()))
//	defer factory.Close()
//	session, err := factory.Open(ctx, "someblog")
//
// ## LinkCollector
//
// 滚动列表页到底部,比较滚动前后的页面高度:
//   - 连续3轮不变后冷却复查,仍不变则视为稳定
//   - 出现"已全部加载"按钮立即停止
//   - 最多滚动200次
//
// 稳定后按从严格到宽松的顺序尝试多个提取策略,第一个得到非空结果的生效。
// 链接统一为 PostView.naver?blogId=..&logNo=.. 形式并去重。
//
// ## PostExtractor
//
// 每个URL最多尝试3次,失败后固定等待2秒。导航超时返回Timeout,其他错误返回Parsing。
// 单个字段提取不到不影响整条记录,例如标题为空时使用 "Post <id>"。
// 评论数为0时不打开评论区。
//
// ## TargetCrawler
//
//	crawler := NewTargetCrawler(factory, SessionProber{Timeout: 30 * time.Second},
//	    NewLinkCollector(DefaultLinkCollectorOptions(), nil),
//	    NewPostExtractor(DefaultPostExtractorOptions()), config)
//	result, err := crawler.Crawl(ctx, TargetRequest{TargetID: "someblog", Save: save})
//
// 传入已有的 TargetProgress 时跳过探测和链接收集,只抓取未抓取的URL。
// 每 save_interval 篇调用一次 Save,取消时未保存的文章放在 TargetResult.Unsaved 中。
//
// # 错误处理
//
//   - 目标不存在: KindNotFound
//   - 列表页无法访问: KindNetwork
//   - 单篇文章失败: 记录到 failed_urls,继续下一篇
//   - 页面被关闭: 立即结束当前目标
package crawlers
