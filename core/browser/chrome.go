package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxSessions       = 4
	defaultNavigationTimeout = 30 * time.Second
	defaultViewportWidth     = 1440
	defaultViewportHeight    = 900
)

// markupScript serializes the live DOM including the doctype.
const markupScript = `(() => {
  const dt = document.doctype ? new XMLSerializer().serializeToString(document.doctype) : "";
  return dt + document.documentElement.outerHTML;
})()`

// stylesheetScript lists every active style sheet in cascade order.
// Inline <style> sheets report their source text unless it is empty
// (rules injected through insertRule) or contains @import; everything else
// reports the CSSOM serialization with readable @imports expanded in place.
const stylesheetScript = `(() => {
  const serialize = (sheet, depth) => {
    let rules;
    try { rules = sheet.cssRules; } catch (e) { return null; }
    if (!rules) return null;
    const out = [];
    for (const rule of Array.from(rules)) {
      if (rule.type === CSSRule.IMPORT_RULE && rule.styleSheet && depth < 8) {
        const inner = serialize(rule.styleSheet, depth + 1);
        if (inner !== null) {
          const media = rule.media ? rule.media.mediaText : "";
          out.push(media && media !== "all" ? "@media " + media + " {\n" + inner + "\n}" : inner);
          continue;
        }
      }
      out.push(rule.cssText);
    }
    return out.join("\n");
  };
  const describe = (sheet) => {
    const media = sheet.media ? sheet.media.mediaText : "";
    const owner = sheet.ownerNode;
    if (owner && owner.tagName && owner.tagName.toLowerCase() === "style") {
      const text = owner.textContent || "";
      if (text.trim() !== "" && !/@import/i.test(text)) {
        return { href: "", media: media, text: text, readable: true };
      }
    }
    const text = serialize(sheet, 0);
    return { href: sheet.href || "", media: media, text: text === null ? "" : text, readable: text !== null };
  };
  const sheets = Array.from(document.styleSheets);
  if (document.adoptedStyleSheets) sheets.push(...document.adoptedStyleSheets);
  return sheets.filter((s) => !s.disabled).map(describe);
})()`

// ChromeConfig configures the chromedp provider.
type ChromeConfig struct {
	// RemoteURL is a DevTools websocket URL of a managed browser. When empty a
	// local Chrome is launched.
	RemoteURL         string
	Headless          bool
	UserAgent         string
	MaxSessions       int
	NavigationTimeout time.Duration
	ViewportWidth     int
	ViewportHeight    int
}

// ChromeProvider hands out chromedp sessions. Each session is a fresh
// browser (local mode) or a fresh tab (remote mode); at most MaxSessions are
// open at once.
type ChromeProvider struct {
	cfg         ChromeConfig
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	slots       *semaphore.Weighted
	open        atomic.Int64
	openGauge   prometheus.Gauge
	log         zerolog.Logger
}

// NewChromeProvider creates a provider. Nothing is launched until the first
// Acquire. reg may be nil.
func NewChromeProvider(cfg ChromeConfig, log zerolog.Logger, reg prometheus.Registerer) *ChromeProvider {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = defaultViewportWidth, defaultViewportHeight
	}

	var allocCtx context.Context
	var cancel context.CancelFunc
	if cfg.RemoteURL != "" {
		allocCtx, cancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("mute-audio", true),
			chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
		)
		if cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
		}
		allocCtx, cancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	return &ChromeProvider{
		cfg:         cfg,
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		slots:       semaphore.NewWeighted(int64(cfg.MaxSessions)),
		openGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "pageclone",
			Subsystem: "browser",
			Name:      "sessions_open",
			Help:      "Browser sessions currently owned by a request.",
		}),
		log: log.With().Str("component", "browser").Logger(),
	}
}

// Acquire waits for a free slot and opens a new session.
func (p *ChromeProvider) Acquire(ctx context.Context) (Session, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for browser slot: %w", err)
	}

	tabCtx, cancel := chromedp.NewContext(p.allocCtx,
		chromedp.WithLogf(func(format string, args ...any) { p.log.Trace().Msgf(format, args...) }),
		chromedp.WithErrorf(func(format string, args ...any) { p.log.Debug().Msgf(format, args...) }),
	)

	// Start the browser (or tab) now so launch failures surface at acquire
	// time, and abort the launch when the caller goes away.
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err == nil {
		err = tabCtx.Err()
	}
	if err != nil {
		cancel()
		p.slots.Release(1)
		return nil, fmt.Errorf("starting browser session: %w", err)
	}

	p.open.Add(1)
	p.openGauge.Inc()
	p.log.Debug().Int64("open", p.open.Load()).Msg("browser session acquired")

	return &chromeSession{
		provider:   p,
		ctx:        tabCtx,
		cancel:     cancel,
		navTimeout: p.cfg.NavigationTimeout,
	}, nil
}

// Open returns the number of sessions currently checked out.
func (p *ChromeProvider) Open() int {
	return int(p.open.Load())
}

// Close shuts down the allocator and every browser it launched.
func (p *ChromeProvider) Close() {
	p.cancelAlloc()
}

func (p *ChromeProvider) release() {
	p.open.Add(-1)
	p.openGauge.Dec()
	p.slots.Release(1)
	p.log.Debug().Int64("open", p.open.Load()).Msg("browser session released")
}

type chromeSession struct {
	provider   *ChromeProvider
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	closeOnce  sync.Once
}

func (s *chromeSession) Load(ctx context.Context, target string, settle time.Duration) (*Snapshot, error) {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	idle := make(chan struct{})
	var (
		idleOnce  sync.Once
		mainFrame atomic.Value
	)
	chromedp.ListenTarget(runCtx, func(ev any) {
		switch e := ev.(type) {
		case *page.EventLifecycleEvent:
			switch e.Name {
			case "init":
				// The first init after navigation starts belongs to the main frame.
				mainFrame.CompareAndSwap(nil, e.FrameID)
			case "networkIdle":
				if id, ok := mainFrame.Load().(cdp.FrameID); ok && id == e.FrameID {
					idleOnce.Do(func() { close(idle) })
				}
			}
		case *inspector.EventTargetCrashed:
			s.provider.log.Warn().Str("url", target).Msg("browser tab crashed")
			cancel()
		}
	})

	if err := chromedp.Run(runCtx, page.SetLifecycleEventsEnabled(true)); err != nil {
		return nil, s.loadError(ctx, target, err)
	}

	navCtx, navCancel := context.WithTimeout(runCtx, s.navTimeout)
	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(target))
	navCancel()
	if err != nil {
		return nil, s.loadError(ctx, target, err)
	}

	settled := awaitSettled(runCtx, idle, settle)

	var (
		markup   string
		sheets   []Sheet
		location string
	)
	if err := chromedp.Run(runCtx,
		chromedp.Evaluate(markupScript, &markup),
		chromedp.Evaluate(stylesheetScript, &sheets),
		chromedp.Location(&location),
	); err != nil {
		return nil, s.loadError(ctx, target, err)
	}

	snap := &Snapshot{
		Markup:   markup,
		FinalURL: location,
		Sheets:   sheets,
		Settled:  settled,
	}
	if resp != nil {
		snap.Status = int(resp.Status)
		if resp.URL != "" {
			snap.FinalURL = resp.URL
		}
	}
	return snap, nil
}

// loadError prefers the caller's cancellation cause over chromedp's own
// error so budget exhaustion is reported as such.
func (s *chromeSession) loadError(ctx context.Context, target string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &NavigationError{URL: target, Err: fmt.Errorf("%w (%v)", ctxErr, err)}
	}
	return classifyNavigation(target, err)
}

func (s *chromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancel()
		s.provider.release()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}
