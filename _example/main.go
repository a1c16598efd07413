package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/jkbrsn/axiosly"
	"github.com/jkbrsn/axiosly/internal/collector"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	// A local collector stands in for a remote metrics backend
	coll := collector.NewServer(collector.Config{APIKey: "demo-key", Logger: logger})
	backend := httptest.NewServer(coll.Handler())
	defer backend.Close()
	defer coll.Close()

	// Monitor a client talking to httpbin, with AI hooks forwarding every request
	client := &http.Client{Timeout: 10 * time.Second}
	monitor, err := axiosly.Attach(client,
		axiosly.WithLogLevel(axiosly.LogVerbose),
		axiosly.WithAI(true),
		axiosly.WithBackend(backend.URL+"/v1/metrics", "demo-key"),
		axiosly.WithSlowThreshold(500*time.Millisecond),
		axiosly.WithPhaseTimings(),
		axiosly.WithLogger(logger),
	)
	if err != nil {
		fmt.Printf("Error attaching monitor: %v\n", err)
		return
	}
	defer monitor.Close()

	for _, target := range []string{
		"https://httpbin.org/get",
		"https://httpbin.org/status/503",
		"https://httpbin.org/delay/1",
	} {
		req, err := http.NewRequest(http.MethodGet, target, nil)
		if err != nil {
			fmt.Printf("Error building request: %v\n", err)
			continue
		}
		req.Header.Set("Authorization", "Bearer not-logged")
		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}

	for _, rec := range monitor.Records() {
		fmt.Println(rec.String())
	}

	// Ship the completed records; the collector replaces the request-time snapshots
	flushed := monitor.Flush(context.Background())
	fmt.Printf("Flushed %d records, collector holds %d\n", flushed, coll.Store().Len())
}
