package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/livehls/models"
)

// CLI flags
var (
	apiURL  = flag.String("api-url", "http://localhost:8080", "livehls API base URL")
	apiKey  = flag.String("api-key", "", "API key for authenticated requests")
	runs    = flag.Int("runs", 3, "Number of runs per handle for averaging")
	output  = flag.String("output", "benchmark-results.json", "JSON output file path")
	handles = flag.String("handles", "", "Comma-separated channel handles (default: built-in set)")
)

// Default handles: a mix of channels that are usually live and usually not.
var defaultHandles = []string{
	"NASA",
	"SkyNews",
	"aljazeeraenglish",
	"LofiGirl",
	"golang",
}

// --- Benchmark result types ---

type runResult struct {
	Run        int    `json:"run"`
	TotalMs    int64  `json:"total_ms"`
	ClientMs   int64  `json:"client_ms"`
	HTTPStatus int    `json:"http_status"`
	Status     string `json:"status"`
	Tier       string `json:"tier,omitempty"`
	CacheHit   bool   `json:"cache_hit"`
	Manifest   bool   `json:"has_manifest"`
	Error      string `json:"error,omitempty"`
}

type handleAverages struct {
	TotalMs  float64 `json:"total_ms"`
	ClientMs float64 `json:"client_ms"`
}

type handleResult struct {
	Handle   string          `json:"handle"`
	Runs     []runResult     `json:"runs"`
	Averages *handleAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp     string         `json:"timestamp"`
	APIURL        string         `json:"api_url"`
	RunsPerHandle int            `json:"runs_per_handle"`
	Results       []handleResult `json:"results"`
}

func main() {
	flag.Parse()

	list := defaultHandles
	if *handles != "" {
		list = splitHandles(*handles)
	}

	fmt.Println("=== livehls Benchmark Suite ===")
	fmt.Printf("API URL:     %s\n", *apiURL)
	fmt.Printf("Runs/handle: %d\n", *runs)
	fmt.Printf("Output:      %s\n", *output)
	fmt.Println()

	// Quick connectivity check.
	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure livehls is running (e.g. go run ./cmd/livehls)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		APIURL:        *apiURL,
		RunsPerHandle: *runs,
	}

	client := &http.Client{Timeout: 90 * time.Second}
	for _, h := range list {
		fmt.Printf("Resolving @%s ...\n", h)
		hr := handleResult{Handle: h}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := resolveHandle(client, h, i)
			if rr.Error != "" && rr.Status == "" {
				fmt.Printf("FAILED: %s\n", rr.Error)
			} else {
				fmt.Printf("%-14s %dms  tier=%s\n", rr.Status, rr.TotalMs, orDash(rr.Tier))
			}
			hr.Runs = append(hr.Runs, rr)
		}

		hr.Averages = computeAverages(hr.Runs)
		report.Results = append(report.Results, hr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func splitHandles(s string) []string {
	var out []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func resolveHandle(client *http.Client, handle string, run int) runResult {
	rr := runResult{Run: run}

	q := url.Values{}
	q.Set("id", handle)
	q.Set("format", "json")

	req, err := http.NewRequest(http.MethodGet, *apiURL+"/api/v1/resolve?"+q.Encode(), nil)
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()
	rr.ClientMs = time.Since(start).Milliseconds()
	rr.HTTPStatus = resp.StatusCode

	var sr models.ResolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Status = sr.Status
	rr.Tier = sr.Tier
	rr.TotalMs = sr.Timing.TotalMs
	rr.CacheHit = sr.CacheStatus == "hit"
	rr.Manifest = sr.ManifestURL != ""
	if sr.Error != nil {
		rr.Error = sr.Error.Message
	}
	return rr
}

// computeAverages covers runs that reached the resolver, whatever the outcome.
func computeAverages(runs []runResult) *handleAverages {
	var n int
	var avg handleAverages
	for _, r := range runs {
		if r.Status == "" {
			continue
		}
		n++
		avg.TotalMs += float64(r.TotalMs)
		avg.ClientMs += float64(r.ClientMs)
	}
	if n == 0 {
		return nil
	}
	avg.TotalMs /= float64(n)
	avg.ClientMs /= float64(n)
	return &avg
}

func printTable(results []handleResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Handle\tOutcome\tAvg Resolve\tAvg Client\tTier\tCache Hits\n")
	fmt.Fprintf(w, "──────\t───────\t───────────\t──────────\t────\t──────────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "@%s\tFAILED\t-\t-\t-\t-\n", r.Handle)
			continue
		}
		status, tier := dominant(r.Runs)
		fmt.Fprintf(w, "@%s\t%s\t%dms\t%dms\t%s\t%d/%d\n",
			r.Handle,
			status,
			int64(r.Averages.TotalMs),
			int64(r.Averages.ClientMs),
			orDash(tier),
			cacheHits(r.Runs),
			len(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

// dominant returns the most frequent outcome and the tier it was reached on.
func dominant(runs []runResult) (string, string) {
	counts := map[string]int{}
	tiers := map[string]string{}
	for _, r := range runs {
		if r.Status == "" {
			continue
		}
		counts[r.Status]++
		if r.Tier != "" {
			tiers[r.Status] = r.Tier
		}
	}
	best, bestCount := "", 0
	for status, count := range counts {
		if count > bestCount {
			best = status
			bestCount = count
		}
	}
	return best, tiers[best]
}

func cacheHits(runs []runResult) int {
	n := 0
	for _, r := range runs {
		if r.CacheHit {
			n++
		}
	}
	return n
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
