//go:build ignore

// Manual smoke check for the browser layer: launches a headful browser,
// loads a results page, and waits for the feed, the same way a real run
// does. Run with: go run test_playwright.go
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kryptonlabs/leadscraper/browser"
)

func main() {
	fmt.Println("Launching browser...")

	driver, err := browser.NewPlaywright(browser.PlaywrightOptions{Headless: false})
	if err != nil {
		log.Fatalf("could not launch browser: %v", err)
	}
	defer driver.Close()

	ctx := context.Background()

	bctx, err := driver.NewContext(ctx)
	if err != nil {
		log.Fatalf("could not create browsing context: %v", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage(ctx)
	if err != nil {
		log.Fatalf("could not create page: %v", err)
	}
	defer page.Close()

	url := "https://www.google.com/maps/search/restaurant?hl=en"
	fmt.Printf("Navigating to %s\n", url)

	if err := page.Navigate(ctx, url); err != nil {
		log.Fatalf("could not navigate: %v", err)
	}

	fmt.Println("Looking for results feed...")

	if err := page.WaitVisible(ctx, `div[role='feed']`, 10*time.Second); err != nil {
		fmt.Printf("Feed not found: %v\n", err)
	} else {
		fmt.Println("Found results feed! The scraper should work here.")
	}

	cards, err := page.QueryAll(ctx, `[role="article"]`)
	if err == nil {
		fmt.Printf("Visible listing cards: %d\n", len(cards))
	}

	fmt.Println("Keeping browser open for 10 seconds...")
	time.Sleep(10 * time.Second)

	fmt.Println("Smoke check completed.")
}
