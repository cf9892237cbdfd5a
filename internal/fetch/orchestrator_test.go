package fetch_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gamecatalog/internal/bgg"
	"gamecatalog/internal/catalog"
	"gamecatalog/internal/fetch"
	"gamecatalog/internal/imagecache"
)

const (
	primary   = "https://primary.example/xmlapi2"
	secondary = "https://secondary.example/xmlapi2"
)

type call struct {
	host string
	req  bgg.ThingRequest
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []call
	respond func(host string, req bgg.ThingRequest, n int) (bgg.Response, error)
}

func (f *fakeFetcher) Fetch(_ context.Context, host string, req bgg.ThingRequest) (bgg.Response, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, call{host: host, req: req})
	f.mu.Unlock()
	resp, err := f.respond(host, req, n)
	resp.Host = host
	return resp, err
}

func (f *fakeFetcher) callsTo(host string) int {
	count := 0
	for _, c := range f.calls {
		if c.host == host {
			count++
		}
	}
	return count
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func thingsXML(ids ...catalog.Identifier) []byte {
	var b strings.Builder
	b.WriteString(`<items termsofuse="x">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<item type="boardgame" id="%d"><name type="primary" value="Game %d"/></item>`, id, id)
	}
	b.WriteString(`</items>`)
	return []byte(b.String())
}

func okResponse(req bgg.ThingRequest) bgg.Response {
	return bgg.Response{Status: http.StatusOK, Body: thingsXML(req.IDs...)}
}

func ids(values ...int) []catalog.Identifier {
	out := make([]catalog.Identifier, len(values))
	for i, v := range values {
		out[i] = catalog.Identifier(v)
	}
	return out
}

func newOrchestrator(t *testing.T, fetcher fetch.Fetcher, sleeper *sleepRecorder, opts ...fetch.Option) *fetch.Orchestrator {
	t.Helper()
	base := []fetch.Option{
		fetch.WithHosts(primary, secondary),
		fetch.WithPolicy(fetch.Policy{
			MaxRetries:     3,
			BaseDelay:      2 * time.Second,
			Multiplier:     2,
			MaxDelay:       16 * time.Second,
			QueuedDelay:    2 * time.Second,
			MaxQueuedPolls: 5,
			FixedDelay:     time.Second,
		}),
		fetch.WithSleeper(sleeper.sleep),
		fetch.WithJitter(func(time.Duration) time.Duration { return 0 }),
	}
	o, err := fetch.New(fetcher, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return o
}

func assertPartition(t *testing.T, requested []catalog.Identifier, result fetch.Result) {
	t.Helper()
	for _, id := range requested {
		_, present := result.Records[id]
		_, failed := result.Failed[id]
		if present == failed {
			t.Fatalf("identifier %d: present=%v failed=%v, want exactly one", id, present, failed)
		}
	}
	if len(result.Records)+len(result.Failed) != len(catalog.NewIdentifierSet(requested...).Slice()) {
		t.Fatalf("records (%d) + failures (%d) do not cover the request", len(result.Records), len(result.Failed))
	}
	if len(result.FailedOrder) != len(result.Failed) {
		t.Fatalf("failed order has %d entries, map has %d", len(result.FailedOrder), len(result.Failed))
	}
}

func TestFetchFailsOverWhenPrimaryThrottled(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(host string, req bgg.ThingRequest, _ int) (bgg.Response, error) {
		if host == primary {
			return bgg.Response{Status: http.StatusTooManyRequests}, nil
		}
		return okResponse(req), nil
	}}
	sleeper := &sleepRecorder{}
	o := newOrchestrator(t, fetcher, sleeper)

	requested := ids(1, 2, 3, 4, 5)
	result := o.Fetch(context.Background(), requested)
	assertPartition(t, requested, result)

	if len(result.Failed) != 0 {
		t.Fatalf("expected no failures, got %v", result.Failed)
	}
	if len(result.Batches) != 1 {
		t.Fatalf("expected one batch outcome, got %d", len(result.Batches))
	}
	batch := result.Batches[0]
	if batch.Host != secondary {
		t.Fatalf("expected secondary host recorded, got %q", batch.Host)
	}
	if batch.Attempts != 5 {
		t.Fatalf("expected 4 primary attempts plus 1 secondary, got %d", batch.Attempts)
	}
	if fetcher.callsTo(primary) != 4 || fetcher.callsTo(secondary) != 1 {
		t.Fatalf("unexpected host calls: primary=%d secondary=%d", fetcher.callsTo(primary), fetcher.callsTo(secondary))
	}
	if diff := cmp.Diff([]time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, sleeper.delays); diff != "" {
		t.Fatalf("unexpected backoff delays (-want +got):\n%s", diff)
	}
	if result.HostUsage[secondary] != 1 || result.HostUsage[primary] != 0 {
		t.Fatalf("unexpected host usage %v", result.HostUsage)
	}
	if got := result.Records[3].Name; got != "Game 3" {
		t.Fatalf("unexpected record name %q", got)
	}
}

func TestFetchDecomposesPoisonedChunk(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(_ string, req bgg.ThingRequest, _ int) (bgg.Response, error) {
		if slices.Contains(req.IDs, 2) {
			return bgg.Response{Status: http.StatusInternalServerError}, nil
		}
		return okResponse(req), nil
	}}
	sleeper := &sleepRecorder{}
	o := newOrchestrator(t, fetcher, sleeper, fetch.WithBatchSize(3), fetch.WithPacing(3*time.Second, 0))

	requested := ids(1, 2, 3)
	result := o.Fetch(context.Background(), requested)
	assertPartition(t, requested, result)

	if result.Failed[2] != catalog.FailureExhausted {
		t.Fatalf("expected identifier 2 exhausted, got %v", result.Failed)
	}
	if _, ok := result.Records[1]; !ok {
		t.Fatal("expected identifier 1 resolved via singleton fallback")
	}
	if _, ok := result.Records[3]; !ok {
		t.Fatal("expected identifier 3 resolved via singleton fallback")
	}
	if len(result.Batches) != 4 {
		t.Fatalf("expected chunk plus three singleton outcomes, got %d", len(result.Batches))
	}
	if !result.Batches[0].Decomposed {
		t.Fatal("expected first outcome marked decomposed")
	}
	for _, outcome := range result.Batches[1:] {
		if !outcome.Singleton || len(outcome.Identifiers) != 1 {
			t.Fatalf("expected singleton outcome, got %+v", outcome)
		}
	}
	if diff := cmp.Diff(ids(2), result.Batches[2].Failed); diff != "" {
		t.Fatalf("unexpected singleton failure (-want +got):\n%s", diff)
	}

	pacing := 0
	for _, d := range sleeper.delays {
		if d == 3*time.Second {
			pacing++
		}
	}
	if pacing != 3 {
		t.Fatalf("expected pacing before each singleton request, got %d pacing sleeps in %v", pacing, sleeper.delays)
	}
}

func TestFetchMarksOmittedIdentifiersMissing(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(_ string, req bgg.ThingRequest, _ int) (bgg.Response, error) {
		return bgg.Response{Status: http.StatusOK, Body: thingsXML(req.IDs[0])}, nil
	}}
	o := newOrchestrator(t, fetcher, &sleepRecorder{})

	requested := ids(7, 8, 9)
	result := o.Fetch(context.Background(), requested)
	assertPartition(t, requested, result)

	if result.Failed[8] != catalog.FailureMissing || result.Failed[9] != catalog.FailureMissing {
		t.Fatalf("expected missing failures, got %v", result.Failed)
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("expected a single request, got %d", len(fetcher.calls))
	}
	if diff := cmp.Diff(ids(8, 9), result.FailedOrder); diff != "" {
		t.Fatalf("unexpected failure order (-want +got):\n%s", diff)
	}
}

func TestFetchChunksAndPaces(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(_ string, req bgg.ThingRequest, _ int) (bgg.Response, error) {
		return okResponse(req), nil
	}}
	sleeper := &sleepRecorder{}
	o := newOrchestrator(t, fetcher, sleeper,
		fetch.WithBatchSize(20),
		fetch.WithPacing(3*time.Second, time.Second),
		fetch.WithJitter(func(bound time.Duration) time.Duration { return bound / 2 }),
	)

	requested := make([]catalog.Identifier, 0, 46)
	for i := 1; i <= 45; i++ {
		requested = append(requested, catalog.Identifier(i))
	}
	requested = append(requested, 5)

	result := o.Fetch(context.Background(), requested)
	assertPartition(t, requested, result)

	if len(fetcher.calls) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(fetcher.calls))
	}
	sizes := []int{len(fetcher.calls[0].req.IDs), len(fetcher.calls[1].req.IDs), len(fetcher.calls[2].req.IDs)}
	if diff := cmp.Diff([]int{20, 20, 5}, sizes); diff != "" {
		t.Fatalf("unexpected chunk sizes (-want +got):\n%s", diff)
	}
	if fetcher.calls[1].req.IDs[0] != 21 {
		t.Fatalf("expected chunks in first-seen order, second chunk starts at %d", fetcher.calls[1].req.IDs[0])
	}
	if !fetcher.calls[0].req.Stats {
		t.Fatal("expected stats requested")
	}
	want := []time.Duration{3500 * time.Millisecond, 3500 * time.Millisecond}
	if diff := cmp.Diff(want, sleeper.delays); diff != "" {
		t.Fatalf("unexpected pacing (-want +got):\n%s", diff)
	}
}

func TestFetchPollsQueuedResponses(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(_ string, req bgg.ThingRequest, n int) (bgg.Response, error) {
		if n < 2 {
			return bgg.Response{Status: http.StatusAccepted}, nil
		}
		return okResponse(req), nil
	}}
	sleeper := &sleepRecorder{}
	o := newOrchestrator(t, fetcher, sleeper)

	result := o.Fetch(context.Background(), ids(1))
	if len(result.Records) != 1 {
		t.Fatalf("expected record after queued polls, got %v", result.Failed)
	}
	if result.Batches[0].Host != primary || result.Batches[0].Attempts != 3 {
		t.Fatalf("unexpected outcome %+v", result.Batches[0])
	}
	if diff := cmp.Diff([]time.Duration{2 * time.Second, 2 * time.Second}, sleeper.delays); diff != "" {
		t.Fatalf("unexpected queued delays (-want +got):\n%s", diff)
	}
}

func TestFetchForbiddenSkipsToNextHost(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(host string, req bgg.ThingRequest, _ int) (bgg.Response, error) {
		if host == primary {
			return bgg.Response{Status: http.StatusForbidden}, nil
		}
		return okResponse(req), nil
	}}
	sleeper := &sleepRecorder{}
	o := newOrchestrator(t, fetcher, sleeper)

	result := o.Fetch(context.Background(), ids(1, 2))
	if len(result.Failed) != 0 {
		t.Fatalf("expected no failures, got %v", result.Failed)
	}
	if fetcher.callsTo(primary) != 1 {
		t.Fatalf("expected one primary call, got %d", fetcher.callsTo(primary))
	}
	if len(sleeper.delays) != 0 {
		t.Fatalf("expected no backoff sleeps, got %v", sleeper.delays)
	}
}

func TestFetchRetriesMalformedPayload(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(_ string, req bgg.ThingRequest, n int) (bgg.Response, error) {
		if n == 0 {
			return bgg.Response{Status: http.StatusOK, Body: []byte(`<items><item id="1">`)}, nil
		}
		return okResponse(req), nil
	}}
	sleeper := &sleepRecorder{}
	o := newOrchestrator(t, fetcher, sleeper)

	result := o.Fetch(context.Background(), ids(1))
	if len(result.Records) != 1 {
		t.Fatalf("expected record after malformed retry, got failures %v", result.Failed)
	}
	if diff := cmp.Diff([]time.Duration{2 * time.Second}, sleeper.delays); diff != "" {
		t.Fatalf("unexpected delays (-want +got):\n%s", diff)
	}
}

func TestFetchTransportErrorsExhaustAllHosts(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(string, bgg.ThingRequest, int) (bgg.Response, error) {
		return bgg.Response{}, errors.New("connection refused")
	}}
	o := newOrchestrator(t, fetcher, &sleepRecorder{})

	requested := ids(1, 2)
	result := o.Fetch(context.Background(), requested)
	assertPartition(t, requested, result)
	if len(result.Failed) != 2 {
		t.Fatalf("expected both identifiers failed, got %v", result.Failed)
	}
	// chunk: 2 hosts x 4 requests, then each singleton: 2 hosts x 4 requests
	if len(fetcher.calls) != 24 {
		t.Fatalf("expected 24 requests, got %d", len(fetcher.calls))
	}
}

func TestFetchCancellationMarksRemainingCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &fakeFetcher{respond: func(_ string, req bgg.ThingRequest, n int) (bgg.Response, error) {
		if n == 0 {
			cancel()
		}
		return okResponse(req), nil
	}}
	o := newOrchestrator(t, fetcher, &sleepRecorder{}, fetch.WithBatchSize(2))

	requested := ids(1, 2, 3, 4, 5)
	result := o.Fetch(ctx, requested)
	assertPartition(t, requested, result)
	for _, id := range requested {
		if result.Failed[id] != catalog.FailureCanceled {
			t.Fatalf("expected identifier %d canceled, got %v", id, result.Failed[id])
		}
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("expected no requests after cancellation, got %d", len(fetcher.calls))
	}
}

func TestFetchEveryIdentifierPresentOrFailed(t *testing.T) {
	statuses := []int{http.StatusOK, http.StatusOK, http.StatusAccepted, http.StatusTooManyRequests, http.StatusForbidden, http.StatusInternalServerError}
	for seed := uint64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*31))
		fetcher := &fakeFetcher{respond: func(_ string, req bgg.ThingRequest, _ int) (bgg.Response, error) {
			status := statuses[rng.IntN(len(statuses))]
			if status != http.StatusOK {
				return bgg.Response{Status: status}, nil
			}
			present := make([]catalog.Identifier, 0, len(req.IDs))
			for _, id := range req.IDs {
				if rng.IntN(5) > 0 {
					present = append(present, id)
				}
			}
			return bgg.Response{Status: status, Body: thingsXML(present...)}, nil
		}}
		o := newOrchestrator(t, fetcher, &sleepRecorder{}, fetch.WithBatchSize(4))

		requested := make([]catalog.Identifier, 0, 30)
		for i := 0; i < 30; i++ {
			requested = append(requested, catalog.Identifier(rng.IntN(20)+1))
		}
		result := o.Fetch(context.Background(), requested)
		assertPartition(t, requested, result)
		for id, record := range result.Records {
			if record.ID != id {
				t.Fatalf("seed %d: record keyed %d has id %d", seed, id, record.ID)
			}
		}
	}
}

func TestFetchRequestsComments(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(_ string, req bgg.ThingRequest, _ int) (bgg.Response, error) {
		return okResponse(req), nil
	}}
	o := newOrchestrator(t, fetcher, &sleepRecorder{}, fetch.WithComments(20, 3))
	o.Fetch(context.Background(), ids(1))
	req := fetcher.calls[0].req
	if !req.Comments || req.PageSize != 20 {
		t.Fatalf("expected comments requested, got %+v", req)
	}
}

func TestResolveVersionImagesUsesCache(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(_ string, req bgg.ThingRequest, _ int) (bgg.Response, error) {
		if req.Type != bgg.TypeVersion {
			return bgg.Response{Status: http.StatusBadRequest}, nil
		}
		var b strings.Builder
		b.WriteString("<items>")
		for _, id := range req.IDs {
			if id == 602 {
				continue
			}
			fmt.Fprintf(&b, `<item type="boardgameversion" id="%d"><image>https://img/%d.png</image></item>`, id, id)
		}
		b.WriteString("</items>")
		return bgg.Response{Status: http.StatusOK, Body: []byte(b.String())}, nil
	}}
	store := imagecache.NewMemoryStore(imagecache.Entry{VersionID: 600, ImageURL: "https://cached/600.png"})
	cache := imagecache.NewCache(store, nil)
	o := newOrchestrator(t, fetcher, &sleepRecorder{}, fetch.WithImageCache(cache))

	images := o.ResolveVersionImages(context.Background(), ids(600, 601, 602, 601))
	want := map[catalog.Identifier]string{
		600: "https://cached/600.png",
		601: "https://img/601.png",
	}
	if diff := cmp.Diff(want, images); diff != "" {
		t.Fatalf("unexpected images (-want +got):\n%s", diff)
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("expected one version request, got %d", len(fetcher.calls))
	}
	if diff := cmp.Diff(ids(601, 602), fetcher.calls[0].req.IDs); diff != "" {
		t.Fatalf("expected only uncached versions requested (-want +got):\n%s", diff)
	}
	if store.Saves() != 1 {
		t.Fatalf("expected cache flushed once, got %d", store.Saves())
	}
	if url, ok := cache.Lookup(601); !ok || url != "https://img/601.png" {
		t.Fatalf("expected new lookup cached, got %q %v", url, ok)
	}

	again := o.ResolveVersionImages(context.Background(), ids(600, 601))
	if len(again) != 2 || len(fetcher.calls) != 1 {
		t.Fatalf("expected fully cached second pass, calls=%d", len(fetcher.calls))
	}
}

func TestVersionLookupAfterFetchIsPaced(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(_ string, req bgg.ThingRequest, _ int) (bgg.Response, error) {
		if req.Type == bgg.TypeVersion {
			body := `<items><item type="boardgameversion" id="600"><image>https://img/600.png</image></item></items>`
			return bgg.Response{Status: http.StatusOK, Body: []byte(body)}, nil
		}
		return okResponse(req), nil
	}}
	sleeper := &sleepRecorder{}
	cache := imagecache.NewCache(imagecache.NewMemoryStore(), nil)
	o := newOrchestrator(t, fetcher, sleeper,
		fetch.WithPacing(3*time.Second, 0),
		fetch.WithImageCache(cache),
	)

	result := o.Fetch(context.Background(), ids(1))
	assertPartition(t, ids(1), result)
	images := o.ResolveVersionImages(context.Background(), ids(600))
	if images[600] != "https://img/600.png" {
		t.Fatalf("unexpected images %v", images)
	}
	if len(fetcher.calls) != 2 {
		t.Fatalf("expected two requests, got %d", len(fetcher.calls))
	}
	if diff := cmp.Diff([]time.Duration{3 * time.Second}, sleeper.delays); diff != "" {
		t.Fatalf("expected the version request paced (-want +got):\n%s", diff)
	}
}

func TestNewRequiresHosts(t *testing.T) {
	if _, err := fetch.New(&fakeFetcher{}, fetch.WithHosts(" ", "")); err == nil {
		t.Fatal("expected error without hosts")
	}
	if _, err := fetch.New(nil, fetch.WithHosts(primary)); err == nil {
		t.Fatal("expected error without fetcher")
	}
}
