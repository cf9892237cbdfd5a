package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"gamecatalog/internal/bgg"
	"gamecatalog/internal/catalog"
	"gamecatalog/internal/dataset"
	"gamecatalog/internal/overrides"
	"gamecatalog/internal/services"
)

// probeID is a long-lived thing id used to test host reachability.
const probeID catalog.Identifier = 1

// Fetcher issues a single upstream request.
type Fetcher interface {
	Fetch(ctx context.Context, host string, req bgg.ThingRequest) (bgg.Response, error)
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckOverrides verifies the override file decodes. A missing file passes
// with a note since runs may rely on --id alone.
func CheckOverrides(path string) Result {
	const name = "Override file"

	set, err := overrides.Load(path)
	if errors.Is(err, services.ErrNotFound) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (missing; only --id identifiers will be fetched)", path)}
	}
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	detail := fmt.Sprintf("%s (%d rows, %d identifiers", path, set.RowCount(), len(set.Order))
	if len(set.Unresolved) > 0 {
		detail += fmt.Sprintf(", %d unresolved", len(set.Unresolved))
	}
	return Result{Name: name, Passed: true, Detail: detail + ")"}
}

// CheckDataset verifies the published dataset, when present, is readable.
func CheckDataset(path string) Result {
	const name = "Dataset"

	ds, err := dataset.NewStore(path, false, nil).Load()
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if ds == nil {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (none published yet)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d records)", path, ds.Len())}
}

// CheckHost sends one single-id request to host. It uses a 10-second timeout
// and a single attempt (no retries).
func CheckHost(ctx context.Context, fetcher Fetcher, host string) Result {
	name := "Host " + host

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := fetcher.Fetch(checkCtx, host, bgg.ThingRequest{IDs: []catalog.Identifier{probeID}})
	if err != nil {
		return Result{Name: name, Detail: summarizeFetchError(err)}
	}
	switch {
	case resp.Status == http.StatusOK:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("Reachable (%s)", resp.Latency.Round(time.Millisecond))}
	case resp.Status == http.StatusAccepted:
		return Result{Name: name, Passed: true, Detail: "Reachable (request queued)"}
	case resp.Status == http.StatusTooManyRequests:
		return Result{Name: name, Passed: true, Detail: "Reachable (rate limited)"}
	case resp.Status == http.StatusUnauthorized, resp.Status == http.StatusForbidden:
		return Result{Name: name, Detail: fmt.Sprintf("auth failed (%d); check bgg.api_token or BGG_API_TOKEN", resp.Status)}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unexpected status %d", resp.Status)}
	}
}

func summarizeFetchError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out (host unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out (host unreachable)"
	}
	return err.Error()
}
