package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/metal-price-harvester/internal/app"
)

type fakeApp struct {
	crawlOpts app.CrawlOptions
	calls     []string
	closed    bool
	err       error
}

func (f *fakeApp) Close()              { f.closed = true }
func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Crawl(_ context.Context, opts app.CrawlOptions) (app.Summary, error) {
	f.calls = append(f.calls, "crawl")
	f.crawlOpts = opts
	return app.Summary{RunID: "run-1"}, f.err
}

func (f *fakeApp) Extract(context.Context) (app.Summary, error) {
	f.calls = append(f.calls, "extract")
	return app.Summary{}, f.err
}

func (f *fakeApp) Proxies(context.Context) ([]string, error) {
	f.calls = append(f.calls, "proxies")
	return []string{"https://1.1.1.1:443"}, f.err
}

func (f *fakeApp) Discover(context.Context) ([]string, error) {
	f.calls = append(f.calls, "discover")
	return nil, f.err
}

func withFakeApp(t *testing.T, fake *fakeApp, factoryErr error) *rootOptions {
	t.Helper()
	var got rootOptions
	original := newApp
	newApp = func(_ context.Context, opts rootOptions) (App, error) {
		got = opts
		if factoryErr != nil {
			return nil, factoryErr
		}
		return fake, nil
	}
	t.Cleanup(func() { newApp = original })
	return &got
}

func run(args ...string) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&discard{})
	root.SetErr(&discard{})
	return root.ExecuteContext(context.Background())
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }

func TestCrawlFlags(t *testing.T) {
	fake := &fakeApp{}
	opts := withFakeApp(t, fake, nil)

	require.NoError(t, run("--config", "harvester.yaml", "--dev", "crawl", "--discover", "--with-proxy", "--cleanup"))
	assert.Equal(t, app.CrawlOptions{Discover: true, WithProxy: true, Cleanup: true}, fake.crawlOpts)
	assert.Equal(t, "harvester.yaml", opts.configFile)
	assert.True(t, opts.development)
	assert.True(t, fake.closed)
}

func TestSubcommandsReachApp(t *testing.T) {
	for _, name := range []string{"extract", "proxies", "discover"} {
		fake := &fakeApp{}
		withFakeApp(t, fake, nil)
		require.NoError(t, run(name, "--no-progress"), name)
		assert.Equal(t, []string{name}, fake.calls)
	}
}

func TestCommandErrorsPropagate(t *testing.T) {
	fake := &fakeApp{err: errors.New("boom")}
	withFakeApp(t, fake, nil)
	require.ErrorContains(t, run("crawl", "--refresh"), "boom")
	assert.True(t, fake.crawlOpts.Refresh)
	assert.True(t, fake.closed, "app is closed on failure too")

	withFakeApp(t, nil, errors.New("bad config"))
	require.ErrorContains(t, run("extract"), "bad config")
}
