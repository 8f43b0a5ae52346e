package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/palantir/palantir-compute-module-wine-enricher/internal/enrich"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/mockprovider"
)

func main() {
	addr := defaultString("MOCK_PROVIDER_ADDR", ":9090")
	token := defaultString("MOCK_PROVIDER_TOKEN", "")

	fs := flag.NewFlagSet("mock-provider", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address (env: MOCK_PROVIDER_ADDR)")
	fs.StringVar(&token, "token", token, "Bearer token to require; empty disables the check (env: MOCK_PROVIDER_TOKEN)")
	_ = fs.Parse(os.Args[1:])

	srv := mockprovider.New()
	srv.RequireBearerToken(token)
	// Answer like the offline stub so end-to-end runs produce deterministic output.
	srv.Respond(func(prompt string) string {
		resp, err := enrich.Stub{}.Complete(context.Background(), prompt)
		if err != nil {
			return "{}"
		}
		return resp.Text
	})

	_, _ = fmt.Fprintf(os.Stdout, "mock-provider listening on %s (OPENAI_BASE_URL=http://localhost%s/v1)\n", addr, addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
