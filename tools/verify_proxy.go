package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Checks that the proxies you plan to pass via -proxies actually route
// traffic: the IP seen through each proxy must differ from your direct IP.

var ipServices = []string{
	"https://api.ipify.org",
	"https://icanhazip.com",
	"https://ifconfig.me/ip",
}

func main() {
	_ = godotenv.Load()

	proxies := os.Getenv("PROXIES")
	if proxies == "" {
		proxies = os.Getenv("PROXY")
	}

	if proxies == "" {
		fmt.Fprintln(os.Stderr, "set PROXIES (comma separated) or PROXY in the environment or .env")
		os.Exit(1)
	}

	directIP, err := fetchIP(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot determine direct IP: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("direct IP: %s\n\n", directIP)

	failed := 0

	for _, raw := range strings.Split(proxies, ",") {
		raw = strings.TrimSpace(raw)

		proxyURL, err := url.Parse(raw)
		if err != nil {
			fmt.Printf("%s: invalid url: %v\n", raw, err)

			failed++

			continue
		}

		proxyIP, err := fetchIP(proxyURL)

		switch {
		case err != nil:
			fmt.Printf("%s: FAILED (%v)\n", raw, err)

			failed++
		case proxyIP == directIP:
			fmt.Printf("%s: NOT ROUTING, your real IP is exposed (%s)\n", raw, proxyIP)

			failed++
		default:
			fmt.Printf("%s: ok (%s)\n", raw, proxyIP)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func fetchIP(proxy *url.URL) (string, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	if proxy != nil {
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
	}

	for _, service := range ipServices {
		resp, err := client.Get(service)
		if err != nil {
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 256))

		_ = resp.Body.Close()

		if err != nil || resp.StatusCode != http.StatusOK {
			continue
		}

		if ip := strings.TrimSpace(string(body)); ip != "" {
			return ip, nil
		}
	}

	return "", fmt.Errorf("failed to get IP from all services")
}
