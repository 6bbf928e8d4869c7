// Package fetcher acquires candidate proxies from third-party listing
// sources and normalizes them into proxy entities.
package fetcher

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/FlickerMi/proxyforge/pkg/proxy"
)

// userAgent is sent to listing endpoints; some of them reject default Go
// client strings.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Source is a single upstream proxy listing. Implementations must be safe
// for concurrent use and must honor context cancellation.
type Source interface {
	// Name identifies the source; it becomes the Source tag of every proxy
	// the listing produces.
	Name() string

	// Fetch returns the candidates the listing currently advertises.
	Fetch(ctx context.Context) ([]*proxy.Proxy, error)
}

// httpGet fetches a listing URL with the shared headers and returns the
// response. Callers own the body.
func httpGet(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("listing returned HTTP %d", resp.StatusCode)
	}
	return resp, nil
}

// TextListSource reads plain-text listings with one proxy per line, either
// bare "ip:port" or full proxy URLs. Lines starting with '#' are skipped.
type TextListSource struct {
	name     string
	url      string
	protocol proxy.Protocol
	client   *http.Client
}

// NewTextListSource creates a text listing source. protocol is assumed for
// bare host:port lines; lines carrying their own scheme keep it.
func NewTextListSource(name, url string, protocol proxy.Protocol, timeout time.Duration) *TextListSource {
	return &TextListSource{
		name:     name,
		url:      url,
		protocol: protocol,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements Source.
func (s *TextListSource) Name() string { return s.name }

// Fetch implements Source.
func (s *TextListSource) Fetch(ctx context.Context) ([]*proxy.Proxy, error) {
	resp, err := httpGet(ctx, s.client, s.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var proxies []*proxy.Proxy
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "://") {
			line = string(s.protocol) + "://" + line
		}
		p, err := proxy.Parse(line)
		if err != nil {
			continue
		}
		p.Source = s.name
		proxies = append(proxies, p)
	}
	if err := scanner.Err(); err != nil {
		return proxies, fmt.Errorf("read listing: %w", err)
	}
	return proxies, nil
}

// HTMLTableSource scrapes listing pages that publish proxies in the common
// free-proxy-list table layout: IP, port, country code, country, anonymity,
// google, https.
type HTMLTableSource struct {
	name   string
	url    string
	client *http.Client
}

// NewHTMLTableSource creates an HTML table source.
func NewHTMLTableSource(name, url string, timeout time.Duration) *HTMLTableSource {
	return &HTMLTableSource{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Name implements Source.
func (s *HTMLTableSource) Name() string { return s.name }

// Fetch implements Source.
func (s *HTMLTableSource) Fetch(ctx context.Context) ([]*proxy.Proxy, error) {
	resp, err := httpGet(ctx, s.client, s.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	var proxies []*proxy.Proxy
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td").Map(func(_ int, cell *goquery.Selection) string {
			return strings.TrimSpace(cell.Text())
		})
		if len(cells) < 2 {
			return
		}

		port, err := strconv.Atoi(cells[1])
		if err != nil || port < 1 || port > 65535 {
			return
		}

		p := &proxy.Proxy{
			Host:     cells[0],
			Port:     port,
			Protocol: proxy.ProtocolHTTP,
			Source:   s.name,
			IsValid:  true,
		}
		if len(cells) > 2 {
			p.Country = cells[2]
		}
		if len(cells) > 4 {
			p.Anonymity = strings.ToLower(cells[4])
		}
		if len(cells) > 6 && strings.EqualFold(cells[6], "yes") {
			p.Protocol = proxy.ProtocolHTTPS
		}
		proxies = append(proxies, p)
	})

	return proxies, nil
}

// GeonodeSource queries the Geonode proxy-list JSON API, paginating up to
// maxPages.
type GeonodeSource struct {
	name     string
	baseURL  string
	maxPages int
	client   *http.Client
}

// geonodeEntry is one proxy record in the Geonode API payload. Ports arrive
// as strings.
type geonodeEntry struct {
	IP             string   `json:"ip"`
	Port           string   `json:"port"`
	Protocols      []string `json:"protocols"`
	Country        string   `json:"country"`
	AnonymityLevel string   `json:"anonymityLevel"`
	Latency        float64  `json:"latency"`
}

// NewGeonodeSource creates a Geonode API source. baseURL must contain a %d
// placeholder for the page number.
func NewGeonodeSource(name, baseURL string, maxPages int, timeout time.Duration) *GeonodeSource {
	if maxPages < 1 {
		maxPages = 1
	}
	return &GeonodeSource{
		name:     name,
		baseURL:  baseURL,
		maxPages: maxPages,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements Source.
func (s *GeonodeSource) Name() string { return s.name }

// Fetch implements Source.
func (s *GeonodeSource) Fetch(ctx context.Context) ([]*proxy.Proxy, error) {
	var proxies []*proxy.Proxy

	for page := 1; page <= s.maxPages; page++ {
		batch, err := s.fetchPage(ctx, page)
		if err != nil {
			// Keep whatever earlier pages produced.
			if len(proxies) > 0 {
				return proxies, nil
			}
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		proxies = append(proxies, batch...)
	}

	return proxies, nil
}

func (s *GeonodeSource) fetchPage(ctx context.Context, page int) ([]*proxy.Proxy, error) {
	resp, err := httpGet(ctx, s.client, fmt.Sprintf(s.baseURL, page))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Data []geonodeEntry `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode listing payload: %w", err)
	}

	proxies := make([]*proxy.Proxy, 0, len(payload.Data))
	for _, entry := range payload.Data {
		port, err := strconv.Atoi(entry.Port)
		if err != nil || port < 1 || port > 65535 {
			continue
		}
		protocol := proxy.ProtocolHTTP
		if len(entry.Protocols) > 0 {
			protocol = proxy.ParseProtocol(entry.Protocols[0])
		}
		p := &proxy.Proxy{
			Host:      entry.IP,
			Port:      port,
			Protocol:  protocol,
			Country:   entry.Country,
			Anonymity: entry.AnonymityLevel,
			Source:    s.name,
			IsValid:   true,
		}
		if entry.Latency > 0 {
			speed := entry.Latency / 1000.0
			p.Speed = &speed
		}
		proxies = append(proxies, p)
	}
	return proxies, nil
}
