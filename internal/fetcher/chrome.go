// internal/fetcher/chrome.go - headless Chrome page loads
package fetcher

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/chromedp/cdproto/cdp"
    "github.com/chromedp/cdproto/network"
    "github.com/chromedp/cdproto/page"
    "github.com/chromedp/chromedp"
    "github.com/sirupsen/logrus"
    "sitewarden/internal/artifacts"
    "sitewarden/internal/config"
    "sitewarden/internal/database"
)

const collectImagesJS = `Array.from(document.images).map(img => ({src: img.currentSrc || img.src || "", alt: img.alt || ""}))`

// ChromeFetcher shares one browser process across fetches. Every fetch runs in
// its own browser context, so cookies and storage never leak between targets.
type ChromeFetcher struct {
    allocCtx      context.Context
    browserCtx    context.Context
    cancelAlloc   context.CancelFunc
    cancelBrowser context.CancelFunc

    artifacts artifacts.Store
    timeout   time.Duration
    idleWait  time.Duration
}

func NewChromeFetcher(browserCfg config.BrowserConfig, monCfg config.MonitoringConfig, store artifacts.Store) (*ChromeFetcher, error) {
    opts := append(chromedp.DefaultExecAllocatorOptions[:],
        chromedp.Flag("headless", browserCfg.Headless == nil || *browserCfg.Headless),
        chromedp.UserAgent(monCfg.UserAgent),
        chromedp.WindowSize(browserCfg.ViewportWidth, browserCfg.ViewportHeight),
        chromedp.Flag("disable-dev-shm-usage", true),
    )
    if browserCfg.ExecPath != "" {
        opts = append(opts, chromedp.ExecPath(browserCfg.ExecPath))
    }
    if browserCfg.NoSandbox {
        opts = append(opts, chromedp.NoSandbox)
    }

    allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
    browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
        chromedp.WithLogf(logrus.Debugf),
        chromedp.WithErrorf(logrus.Debugf),
    )

    // starts the browser process
    if err := chromedp.Run(browserCtx); err != nil {
        cancelBrowser()
        cancelAlloc()
        return nil, fmt.Errorf("failed to start browser: %w", err)
    }

    logrus.WithFields(logrus.Fields{
        "headless": browserCfg.Headless == nil || *browserCfg.Headless,
        "viewport": fmt.Sprintf("%dx%d", browserCfg.ViewportWidth, browserCfg.ViewportHeight),
    }).Info("Browser started")

    return &ChromeFetcher{
        allocCtx:      allocCtx,
        browserCtx:    browserCtx,
        cancelAlloc:   cancelAlloc,
        cancelBrowser: cancelBrowser,
        artifacts:     store,
        timeout:       monCfg.FetchTimeout,
        idleWait:      monCfg.IdleWait,
    }, nil
}

func (f *ChromeFetcher) Close() {
    f.cancelBrowser()
    f.cancelAlloc()
}

// pageObserver collects events for one tab.
type pageObserver struct {
    mainFrame cdp.FrameID

    mu      sync.Mutex
    loader  cdp.LoaderID
    status  int
    url     string
    headers map[string]string

    idleOnce sync.Once
    idle     chan struct{}
}

func (o *pageObserver) handle(ev interface{}) {
    switch e := ev.(type) {
    case *network.EventResponseReceived:
        // redirects never produce a document response, so the last one is final
        if e.Type != network.ResourceTypeDocument || e.FrameID != o.mainFrame || e.Response == nil {
            return
        }
        o.mu.Lock()
        o.loader = e.LoaderID
        o.status = int(e.Response.Status)
        o.url = e.Response.URL
        o.headers = normalizeHeaders(e.Response.Headers, func(v interface{}) string { return fmt.Sprint(v) })
        o.mu.Unlock()
    case *page.EventLifecycleEvent:
        if e.FrameID != o.mainFrame || e.Name != "networkIdle" {
            return
        }
        // ignore the blank page the tab starts on
        o.mu.Lock()
        current := o.loader != "" && e.LoaderID == o.loader
        o.mu.Unlock()
        if current {
            o.idleOnce.Do(func() { close(o.idle) })
        }
    }
}

func (f *ChromeFetcher) Fetch(ctx context.Context, url string) *Result {
    started := time.Now()

    if _, ok := ctx.Deadline(); !ok && f.timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, f.timeout)
        defer cancel()
    }

    tabCtx, closeTab := chromedp.NewContext(f.browserCtx, chromedp.WithNewBrowserContext())
    defer closeTab()
    // the tab lives under the browser, so tie it to the caller explicitly
    stop := context.AfterFunc(ctx, closeTab)
    defer stop()

    runCtx, cancelRun := context.WithCancel(tabCtx)
    if deadline, ok := ctx.Deadline(); ok {
        runCtx, cancelRun = context.WithDeadline(tabCtx, deadline)
    }
    defer cancelRun()

    if err := chromedp.Run(runCtx); err != nil {
        return Failed(ctx, fmt.Errorf("failed to open tab: %w", err), started)
    }

    observer := &pageObserver{
        mainFrame: cdp.FrameID(chromedp.FromContext(runCtx).Target.TargetID),
        idle:      make(chan struct{}),
    }
    chromedp.ListenTarget(runCtx, observer.handle)

    err := chromedp.Run(runCtx,
        network.Enable(),
        page.SetLifecycleEventsEnabled(true),
        chromedp.Navigate(url),
    )
    if err != nil {
        return Failed(ctx, err, started)
    }

    select {
    case <-observer.idle:
    case <-runCtx.Done():
        return Failed(ctx, fmt.Errorf("network did not settle: %w", runCtx.Err()), started)
    }
    loaded := time.Since(started)

    if f.idleWait > 0 {
        select {
        case <-time.After(f.idleWait):
        case <-runCtx.Done():
        }
    }

    result := &Result{}
    var screenshot []byte
    err = chromedp.Run(runCtx,
        chromedp.OuterHTML("html", &result.HTML, chromedp.ByQuery),
        chromedp.Title(&result.Title),
        chromedp.Evaluate(collectImagesJS, &result.Images),
        chromedp.CaptureScreenshot(&screenshot),
    )
    if err != nil {
        return Failed(ctx, fmt.Errorf("failed to capture page: %w", err), started)
    }

    observer.mu.Lock()
    result.StatusCode = observer.status
    result.FinalURL = observer.url
    result.Headers = observer.headers
    observer.mu.Unlock()

    if result.Headers == nil {
        result.Headers = map[string]string{}
    }
    if result.FinalURL == "" {
        result.FinalURL = url
    }
    if result.Images == nil {
        result.Images = []database.Image{}
    }
    result.OK = true
    result.Duration = loaded

    if f.artifacts != nil && len(screenshot) > 0 {
        ref, err := f.artifacts.Save(ctx, artifacts.ScreenshotName(started, url), screenshot)
        if err != nil {
            logrus.WithError(err).WithField("url", url).Warn("Failed to store screenshot")
        } else {
            result.Screenshot = ref
        }
    }

    return result
}
