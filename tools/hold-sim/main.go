// Command hold-sim settles a fake payment hold on a booking-service running
// with ALLOW_FAKE_PAYMENTS, standing in for the client finishing checkout.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	var (
		baseURL = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking-service base url")
		holdID  = flag.String("hold-id", getenv("HOLD_ID", ""), "payment hold id returned by POST /api/v1/bookings")
		action  = flag.String("action", getenv("HOLD_ACTION", "authorize"), "authorize or decline")
	)
	flag.Parse()

	if strings.TrimSpace(*holdID) == "" {
		fatal("HOLD_ID is required")
	}
	if *action != "authorize" && *action != "decline" {
		fatal("action must be authorize or decline")
	}

	url := fmt.Sprintf("%s/api/v1/dev/holds/%s/%s", strings.TrimRight(*baseURL, "/"), *holdID, *action)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		fatal(err.Error())
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	fmt.Printf("status=%d\n", resp.StatusCode)
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
