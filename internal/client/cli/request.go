package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxPrintedBody = 64 << 10

// Get performs an authenticated GET of an API path and prints the status and
// body. Expired access tokens are refreshed by the pipeline on the way.
func (a *App) Get(ctx context.Context, path string) error {
	resp, err := a.api.Get(ctx, path)
	if err != nil {
		a.report(ctx, "Request failed", err)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPrintedBody))
	if err != nil {
		a.report(ctx, "Reading response failed", err)
		return err
	}

	fmt.Fprintln(a.out, resp.Status)
	if text := strings.TrimSpace(string(body)); text != "" {
		fmt.Fprintln(a.out, text)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		fmt.Fprintln(a.out, "(not authorized, log in first)")
	}
	return nil
}
