package crawlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// fakeSession 内存中的PageSession,记录调用情况
type fakeSession struct {
	mu sync.Mutex

	counts map[string]int
	texts  map[string]string
	lists  map[string][]string
	html   map[string]string
	title  string

	// navErrs 按调用顺序消费,用完后导航总是成功
	navErrs []error
	// evalFn 处理Evaluate,返回值会被序列化为JSON
	evalFn func(script string, args []interface{}) (interface{}, error)
	// onNavigate 导航时回调,可用于模拟页面内容变化
	onNavigate func(url string)

	closed bool

	navigations []string
	policies    []WaitPolicy
	clicks      []string
	scripts     []string
	scrolls     int
	closeCalls  int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		counts: map[string]int{},
		texts:  map[string]string{},
		lists:  map[string][]string{},
		html:   map[string]string{},
	}
}

func (f *fakeSession) Navigate(ctx context.Context, url string, policy WaitPolicy, timeout time.Duration) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrSessionClosed
	}
	f.navigations = append(f.navigations, url)
	f.policies = append(f.policies, policy)
	var err error
	if len(f.navErrs) > 0 {
		err = f.navErrs[0]
		f.navErrs = f.navErrs[1:]
	}
	hook := f.onNavigate
	f.mu.Unlock()

	if err == nil && hook != nil {
		hook(url)
	}
	return err
}

func (f *fakeSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if f.IsClosed() {
		return ErrSessionClosed
	}
	return nil
}

func (f *fakeSession) Evaluate(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrSessionClosed
	}
	f.scripts = append(f.scripts, script)
	fn := f.evalFn
	f.mu.Unlock()

	if fn == nil {
		return json.RawMessage("null"), nil
	}
	v, err := fn(script, args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (f *fakeSession) Count(ctx context.Context, selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrSessionClosed
	}
	return f.counts[selector], nil
}

func (f *fakeSession) Text(ctx context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", ErrSessionClosed
	}
	if v, ok := f.texts[selector]; ok {
		return v, nil
	}
	return "", ErrElementNotFound
}

func (f *fakeSession) Texts(ctx context.Context, selector string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrSessionClosed
	}
	return f.lists[selector], nil
}

func (f *fakeSession) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	return "", false, ErrElementNotFound
}

func (f *fakeSession) HTML(ctx context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", ErrSessionClosed
	}
	if v, ok := f.html[selector]; ok {
		return v, nil
	}
	return "", ErrElementNotFound
}

func (f *fakeSession) Title(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", ErrSessionClosed
	}
	return f.title, nil
}

func (f *fakeSession) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.navigations) == 0 {
		return ""
	}
	return f.navigations[len(f.navigations)-1]
}

func (f *fakeSession) ScrollToBottom(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrSessionClosed
	}
	f.scrolls++
	return nil
}

func (f *fakeSession) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrSessionClosed
	}
	f.clicks = append(f.clicks, selector)
	return nil
}

func (f *fakeSession) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCalls++
	return nil
}

func (f *fakeSession) scriptCalls(script string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.scripts {
		if s == script {
			n++
		}
	}
	return n
}

func (f *fakeSession) clicked(selector string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clicks {
		if c == selector {
			return true
		}
	}
	return false
}

// fakeFactory 每次Open返回同一个fakeSession
type fakeFactory struct {
	session *fakeSession
	opens   int
	err     error
}

func (f *fakeFactory) Open(ctx context.Context, targetID string) (PageSession, error) {
	f.opens++
	if f.err != nil {
		return nil, f.err
	}
	f.session.mu.Lock()
	f.session.closed = false
	f.session.mu.Unlock()
	return f.session, nil
}

// sleepRecorder 不真正等待,只记录等待时长
type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == d {
			n++
		}
	}
	return n
}
