package crawler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/anime-catalog-crawler/internal/storage/memory"
	"github.com/JakeFAU/anime-catalog-crawler/internal/store"
)

const (
	testBase        = "https://otakudesu.test"
	testNonceAction = "nonce-action"
	testEmbedAction = "embed-action"
)

func testConfig() Config {
	return Config{
		BaseURL:            testBase,
		ListPath:           "/anime-list/",
		AjaxPath:           "/wp-admin/admin-ajax.php",
		NonceAction:        testNonceAction,
		EmbedAction:        testEmbedAction,
		SeriesConcurrency:  2,
		EpisodeConcurrency: 2,
		AjaxConcurrency:    2,
		FetchMirrors:       true,
	}
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixedIDs struct{}

func (fixedIDs) NewID() (string, error) { return "run-test", nil }

// fakeSite serves canned pages and answers the AJAX endpoint.
type fakeSite struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]error
	nonces   atomic.Int32

	// embed answers one embed POST; nil serves a working iframe.
	embed func(fields map[string]string) string
	// nonceBody replaces the nonce response when set.
	nonceBody string

	nonceCalls   atomic.Int32
	embedCalls   atomic.Int32
	ajaxInFlight atomic.Int32
	ajaxPeak     atomic.Int32
	gets         []string
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:    make(map[string]string),
		failures: make(map[string]error),
	}
}

func (s *fakeSite) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets = append(s.gets, rawURL)
	if err := s.failures[rawURL]; err != nil {
		return nil, err
	}
	page, ok := s.pages[rawURL]
	if !ok {
		return nil, fmt.Errorf("GET %s: unexpected status 404", rawURL)
	}
	return []byte(page), nil
}

func (s *fakeSite) PostForm(ctx context.Context, rawURL string, fields map[string]string, referer string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rawURL != testBase+"/wp-admin/admin-ajax.php" {
		return nil, fmt.Errorf("POST to unexpected url %s", rawURL)
	}
	if referer == "" {
		return nil, errors.New("ajax call without referer")
	}
	n := s.ajaxInFlight.Add(1)
	defer s.ajaxInFlight.Add(-1)
	for {
		peak := s.ajaxPeak.Load()
		if n <= peak || s.ajaxPeak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	switch fields["action"] {
	case testNonceAction:
		s.nonceCalls.Add(1)
		if s.nonceBody != "" {
			return []byte(s.nonceBody), nil
		}
		return []byte(fmt.Sprintf(`{"data":"nonce-%d"}`, s.nonces.Add(1))), nil
	case testEmbedAction:
		s.embedCalls.Add(1)
		if s.embed != nil {
			return []byte(s.embed(fields)), nil
		}
		return []byte(embedResponse(fields["id"], fields["q"])), nil
	default:
		return []byte(`{"data":0}`), nil
	}
}

func (s *fakeSite) fetched(rawURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.gets {
		if u == rawURL {
			return true
		}
	}
	return false
}

func embedResponse(id, quality string) string {
	html := fmt.Sprintf(`<div class="responsive-embed-stream"><iframe src="https://player.test/embed/%s/%s" allowfullscreen></iframe></div>`, id, quality)
	return fmt.Sprintf(`{"data":%q}`, base64.StdEncoding.EncodeToString([]byte(html)))
}

func mirrorPayload(id, index int, quality string) string {
	raw := fmt.Sprintf(`{"id":%d,"i":%d,"q":%q}`, id, index, quality)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

type seriesFixture struct {
	slug     string
	title    string
	onGoing  bool
	episodes int
}

func (s seriesFixture) url() string { return testBase + "/anime/" + s.slug + "/" }

func (s seriesFixture) episodeURL(n int) string {
	return fmt.Sprintf("%s/episode/%s-episode-%d/", testBase, s.slug, n)
}

// addCatalog registers a catalog listing and every page reachable from it.
func (s *fakeSite) addCatalog(series ...seriesFixture) {
	var b strings.Builder
	b.WriteString(`<div class="daftarkartun"><ul>`)
	for _, fx := range series {
		marker := ""
		if fx.onGoing {
			marker = ` <color style="color:red">On-Going</color>`
		}
		// Relative links exercise resolution against the base URL.
		fmt.Fprintf(&b, `<li><a class="hodebgst" href="/anime/%s/">%s%s</a></li>`, fx.slug, fx.title, marker)
	}
	b.WriteString(`</ul></div>`)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[testBase+"/anime-list/"] = b.String()
	for i, fx := range series {
		s.pages[fx.url()] = detailPage(fx)
		for n := 1; n <= fx.episodes; n++ {
			s.pages[fx.episodeURL(n)] = episodePage((i+1)*100+n, "ondesu")
		}
	}
}

func (s *fakeSite) setPage(rawURL, body string) {
	s.mu.Lock()
	s.pages[rawURL] = body
	s.mu.Unlock()
}

func (s *fakeSite) fail(rawURL string, err error) {
	s.mu.Lock()
	s.failures[rawURL] = err
	s.mu.Unlock()
}

func detailPage(s seriesFixture) string {
	var eps strings.Builder
	for n := s.episodes; n >= 1; n-- {
		fmt.Fprintf(&eps, `<li><span><a href="%s">%s Episode %d Subtitle Indonesia</a></span><span class="zeebr">%d Jan,2024</span></li>`,
			s.episodeURL(n), s.title, n, n)
	}
	return fmt.Sprintf(`
<div class="fotoanime">
  <img src="https://cdn.test/%[1]s.jpg" />
  <div class="infozin"><div class="infozingle">
    <p><span><b>Judul</b>: %[2]s</span></p>
    <p><span><b>Japanese</b>: %[2]s JP</span></p>
    <p><span><b>Skor</b>: 8.50</span></p>
    <p><span><b>Produser</b>: Aniplex</span></p>
    <p><span><b>Tipe</b>: TV</span></p>
    <p><span><b>Status</b>: Completed</span></p>
    <p><span><b>Total Episode</b>: %[3]d</span></p>
    <p><span><b>Durasi</b>: 24 min. per ep.</span></p>
    <p><span><b>Tanggal Rilis</b>: Jan 1, 2024</span></p>
    <p><span><b>Studio</b>: Madhouse</span></p>
    <p><span><b>Genre</b>: <a href="/genres/action/">Action</a>, <a href="/genres/drama/">Drama</a></span></p>
  </div></div>
</div>
<div class="sinopc"><p>Opening paragraph.</p><p>Closing paragraph.</p></div>
<div class="episodelist"><ul>%[4]s</ul></div>`, s.slug, s.title, s.episodes, eps.String())
}

func episodePage(payloadID int, provider string) string {
	return fmt.Sprintf(`
<div class="mirrorstream">
  <ul class="m720p"><li><a href="#" data-content="%s">%s</a></li></ul>
</div>`, mirrorPayload(payloadID, 0, "720p"), provider)
}

// catalogSnapshot is a projection of the stored catalog that ignores
// generated ids and ordering.
type catalogSnapshot map[string]seriesSnapshot

type seriesSnapshot struct {
	Title    string
	Status   store.CatalogStatus
	Detail   store.SeriesDetail
	Genres   []string
	Episodes map[string]episodeSnapshot
}

type episodeSnapshot struct {
	Title   string
	Number  *int
	Mirrors map[string]mirrorSnapshot
}

type mirrorSnapshot struct {
	Key     store.MirrorKey
	Status  store.FetchStatus
	Iframe  *string
	Message *string
}

func snapshot(t *testing.T, repo *memory.Store) catalogSnapshot {
	t.Helper()
	ctx := context.Background()
	out := make(catalogSnapshot)
	list, _, err := repo.ListSeries(ctx, store.SeriesFilter{})
	require.NoError(t, err)
	for _, item := range list {
		series, err := repo.GetSeries(ctx, item.ID)
		require.NoError(t, err)
		snap := seriesSnapshot{
			Title:    series.Title,
			Status:   series.CatalogStatus,
			Detail:   series.Detail,
			Genres:   series.Genres,
			Episodes: make(map[string]episodeSnapshot),
		}
		episodes, _, err := repo.ListEpisodes(ctx, series.ID, store.EpisodeFilter{})
		require.NoError(t, err)
		for _, ep := range episodes {
			mirrors, _, err := repo.ListMirrors(ctx, ep.ID, store.MirrorFilter{})
			require.NoError(t, err)
			es := episodeSnapshot{Title: ep.Title, Number: ep.Number, Mirrors: make(map[string]mirrorSnapshot)}
			for _, m := range mirrors {
				es.Mirrors[m.Quality+"/"+m.Provider] = mirrorSnapshot{
					Key:     m.Key,
					Status:  m.Status,
					Iframe:  m.IframeSrc,
					Message: m.ErrorMessage,
				}
			}
			snap.Episodes[ep.EpisodeURL] = es
		}
		out[series.SourceURL] = snap
	}
	return out
}

func newTestPipeline(t *testing.T, cfg Config, client Client, repo store.Writer) *Pipeline {
	t.Helper()
	p, err := New(cfg, client, repo, nil,
		WithClock(fixedClock{t: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}),
		WithIDGenerator(fixedIDs{}),
	)
	require.NoError(t, err)
	return p
}

// mockClient is a testify mock of Client.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) Get(ctx context.Context, rawURL string) ([]byte, error) {
	args := m.Called(ctx, rawURL)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

func (m *mockClient) PostForm(ctx context.Context, rawURL string, fields map[string]string, referer string) ([]byte, error) {
	args := m.Called(ctx, rawURL, fields, referer)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}
