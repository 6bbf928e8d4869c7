package fetcher

import (
	"github.com/FlickerMi/proxyforge/pkg/config"
	"github.com/FlickerMi/proxyforge/pkg/proxy"
)

// BuiltinSources returns the default source registry: a mix of raw-list
// GitHub mirrors, scrapeable listing tables, and the Geonode API. Free
// listings churn constantly, so the set leans on endpoints that have been
// stable for years.
func BuiltinSources(cfg config.FetcherConfig) []Source {
	t := cfg.SourceTimeout

	return []Source{
		NewTextListSource("thespeedx-http",
			"https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt",
			proxy.ProtocolHTTP, t),
		NewTextListSource("thespeedx-socks5",
			"https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/socks5.txt",
			proxy.ProtocolSOCKS5, t),
		NewTextListSource("clarketm",
			"https://raw.githubusercontent.com/clarketm/proxy-list/master/proxy-list-raw.txt",
			proxy.ProtocolHTTP, t),
		NewTextListSource("shiftytr",
			"https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/http.txt",
			proxy.ProtocolHTTP, t),
		NewTextListSource("sunny9577",
			"https://raw.githubusercontent.com/sunny9577/proxy-scraper/master/proxies.txt",
			proxy.ProtocolHTTP, t),
		NewTextListSource("proxyscrape-http",
			"https://api.proxyscrape.com/v2/?request=displayproxies&protocol=http&timeout=10000&country=all",
			proxy.ProtocolHTTP, t),
		NewTextListSource("proxyscrape-socks4",
			"https://api.proxyscrape.com/v2/?request=displayproxies&protocol=socks4&timeout=10000&country=all",
			proxy.ProtocolSOCKS4, t),
		NewHTMLTableSource("free-proxy-list",
			"https://free-proxy-list.net/", t),
		NewHTMLTableSource("sslproxies",
			"https://www.sslproxies.org/", t),
		NewHTMLTableSource("us-proxy",
			"https://www.us-proxy.org/", t),
		NewGeonodeSource("geonode",
			"https://proxylist.geonode.com/api/proxy-list?limit=500&page=%d&sort_by=lastChecked&sort_type=desc",
			cfg.MaxPages, t),
	}
}
