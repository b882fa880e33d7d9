package olx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"olx-price-pipeline/config"
	"olx-price-pipeline/models"
	"olx-price-pipeline/utils"
)

const listURL = "https://www.olx.com.br/autos-e-pecas/carros-vans-e-utilitarios"

// Scraper collects used-car listings from the OLX autos section: paginated
// list pages for the card fields, detail pages for the technical attributes,
// options and location. It emits RawListings untouched — the site is an
// untrusted source and all validation happens in the cleaning stage.
type Scraper struct {
	cfg     *config.Config
	logger  *utils.Logger
	pool    *utils.WorkerPool
	visited *utils.URLSet
	retry   *utils.RetryConfig

	mu       sync.Mutex
	listings []*models.RawListing
}

// New creates a ready-to-use OLX Scraper.
func New(cfg *config.Config, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:     cfg,
		logger:  logger,
		pool:    utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs),
		visited: utils.NewURLSet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}
}

// Scrape drives pagination and detail-page enrichment.
func (s *Scraper) Scrape() ([]*models.RawListing, error) {
	s.logger.Info("[olx] Starting scrape — target: %d pages", s.cfg.PagesToScrape)

	chromeBin := FindChromeBinary(s.cfg.ChromeBin)
	s.logger.Info("[olx] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancelAlloc()

	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelSilent()
	allocCtx = silentCtx

	for page := 1; page <= s.cfg.PagesToScrape; page++ {
		pageListings, err := s.scrapePage(allocCtx, page)
		if err != nil {
			s.logger.Error("[olx] Page %d failed: %v", page, err)
			break
		}
		if len(pageListings) == 0 {
			s.logger.Warn("[olx] Page %d returned 0 listings — stopping", page)
			break
		}

		s.enrichListings(allocCtx, pageListings)

		s.mu.Lock()
		s.listings = append(s.listings, pageListings...)
		total := len(s.listings)
		s.mu.Unlock()

		s.logger.Info("[olx] Page %d done — collected %d listings so far", page, total)
		time.Sleep(time.Duration(s.cfg.RateLimitMs) * time.Millisecond)
	}

	s.logger.Info("[olx] Scrape complete — total raw listings: %d", len(s.listings))
	return s.listings, nil
}

// scrapePage loads one paginated list URL and extracts the ad cards.
func (s *Scraper) scrapePage(allocCtx context.Context, pageNum int) ([]*models.RawListing, error) {
	var rawListings []*models.RawListing

	err := s.retry.Do(fmt.Sprintf("scrape-page-%d", pageNum), func() error {
		ctx, cancel := chromedp.NewContext(allocCtx)
		defer cancel()

		ctx, cancelTimeout := context.WithTimeout(ctx, 90*time.Second)
		defer cancelTimeout()

		type cardData struct {
			URL   string `json:"url"`
			Title string `json:"title"`
			Km    string `json:"km"`
			Color string `json:"color"`
			Motor string `json:"motor"`
			Price string `json:"price"`
		}

		var cards []cardData

		err := chromedp.Run(ctx,
			chromedp.Navigate(fmt.Sprintf("%s?o=%d", listURL, pageNum)),
			chromedp.Sleep(5*time.Second),

			chromedp.Evaluate(`
				(function() {
					var results = [];
					var cards = document.querySelectorAll("div[class^='olx-adcard__content']");
					for (var i = 0; i < cards.length; i++) {
						var card = cards[i];
						var q = function(sel) {
							var el = card.querySelector(sel);
							return el ? el.innerText.trim() : '';
						};
						var link = card.querySelector('a');
						results.push({
							url:   link ? link.href : '',
							title: q("h2[class^='typo-body-large']"),
							km:    q("[aria-label$='quilômetros rodados']"),
							color: q("[aria-label^='Cor']"),
							motor: q("[aria-label^='Motor']"),
							price: q("h3[class^='typo-body-large']")
						});
					}
					return results;
				})()
			`, &cards),
		)
		if err != nil {
			return fmt.Errorf("chromedp page scrape: %w", err)
		}

		s.logger.Debug("[olx] Page %d — found %d cards", pageNum, len(cards))

		for _, c := range cards {
			if c.URL == "" || !s.visited.Add(c.URL) {
				continue
			}
			rawListings = append(rawListings, &models.RawListing{
				URL:        c.URL,
				Title:      c.Title,
				KmText:     c.Km,
				ColorText:  c.Color,
				EngineText: c.Motor,
				PriceText:  c.Price,
				ScrapedAt:  time.Now(),
			})
		}
		return nil
	})

	return rawListings, err
}

// detailData is the raw payload extracted from one ad detail page.
type detailData struct {
	Details  map[string]string `json:"details"`
	Options  []string          `json:"options"`
	Location struct {
		Neighborhood string `json:"neighborhood"`
		CityStateZip string `json:"cityStateZip"`
	} `json:"location"`
}

// enrichListings visits every card's detail page through the worker pool and
// attaches technical attributes, option flags and location.
func (s *Scraper) enrichListings(allocCtx context.Context, listings []*models.RawListing) {
	for _, listing := range listings {
		l := listing
		s.pool.Submit(func() {
			if err := s.scrapeDetailPage(allocCtx, l); err != nil {
				s.logger.Warn("[olx] Detail page failed for %s: %v", l.URL, err)
			}
		})
	}
	s.pool.Wait()
}

func (s *Scraper) scrapeDetailPage(allocCtx context.Context, l *models.RawListing) error {
	return s.retry.Do("detail-page", func() error {
		ctx, cancel := chromedp.NewContext(allocCtx)
		defer cancel()

		ctx, cancelTimeout := context.WithTimeout(ctx, 60*time.Second)
		defer cancelTimeout()

		var data detailData

		err := chromedp.Run(ctx,
			chromedp.Navigate(l.URL),
			chromedp.Sleep(4*time.Second),

			chromedp.Evaluate(`
				(function() {
					var out = {details: {}, options: [], location: {neighborhood: '', cityStateZip: ''}};

					var blocks = document.querySelectorAll('#details [data-ds-component="DS-Container"]');
					for (var i = 0; i < blocks.length; i++) {
						var keyEl = blocks[i].querySelector('span[data-variant="overline"]');
						if (!keyEl) continue;
						var valEl = blocks[i].querySelector('span:not([data-variant="overline"]), a');
						if (!valEl) continue;
						var key = keyEl.innerText.trim();
						var val = valEl.innerText.trim();
						if (key && val) out.details[key] = val;
					}

					var optEls = document.querySelectorAll('div[class^="ad__sc-1jr3zuf-1"]');
					for (var j = 0; j < optEls.length; j++) {
						var lines = optEls[j].innerText.split('\n');
						for (var k = 0; k < lines.length; k++) {
							var opt = lines[k].trim();
							if (opt) out.options.push(opt);
						}
					}

					var locEl = document.querySelector('div[class$="gYzJpw"]');
					if (locEl) {
						var hood = locEl.querySelector('span.olx-text--body-medium');
						if (hood) out.location.neighborhood = hood.innerText.trim();
						var csz = locEl.querySelector('span.olx-text--body-small');
						if (csz) out.location.cityStateZip = csz.innerText.trim();
					}

					return out;
				})()
			`, &data),
		)
		if err != nil {
			return fmt.Errorf("chromedp detail scrape: %w", err)
		}

		for key, val := range data.Details {
			l.SetDetail(normalizeDetailKey(key), val)
		}
		for _, opt := range data.Options {
			if key := normalizeKey(opt); key != "" {
				l.SetDetail(key, "True")
			}
		}

		if data.Location.Neighborhood != "" {
			l.SetDetail(models.DetailNeighborhood, data.Location.Neighborhood)
		}
		city, state, zip := parseLocation(data.Location.CityStateZip)
		if city != "" {
			l.SetDetail(models.DetailCity, city)
		}
		if state != "" {
			l.SetDetail(models.DetailState, state)
		}
		if zip != "" {
			l.SetDetail(models.DetailZipCode, zip)
		}

		s.logger.Debug("[olx] Enriched %s — %d details, %d options",
			l.URL, len(data.Details), len(data.Options))
		return nil
	})
}

// parseLocation splits "city, state, zip" with the shorter forms the site
// sometimes renders.
func parseLocation(raw string) (city, state, zip string) {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], parts[1], ""
	case 1:
		return parts[0], "", ""
	}
	return "", "", ""
}

// normalizeDetailKey turns an attribute label into its detail-map key:
// lower-cased, whitespace collapsed to underscores, accents preserved.
// "Potência do motor" → "potência_do_motor", matching the keys the cleaning
// stage reads.
func normalizeDetailKey(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(label))), "_")
}

// accentFolder maps the accented characters appearing in the site's option
// labels to their base letters.
var accentFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

// normalizeKey turns an option label into a stable flag column key:
// lower-cased, accents folded, non-alphanumerics collapsed to underscores.
// "Trava elétrica" → "trava_eletrica".
func normalizeKey(label string) string {
	s := accentFolder.Replace(strings.ToLower(strings.TrimSpace(label)))

	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// FindChromeBinary locates the Chrome/Chromium binary, preferring the
// configured path. An empty return lets chromedp use its own default lookup.
func FindChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
