package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/daily-digest/internal/events"
	"github.com/kjstillabower/daily-digest/internal/models"
	"github.com/kjstillabower/daily-digest/internal/render"
)

type fakeFetcher struct {
	weatherFn func(ctx context.Context, city string) *models.WeatherReading
	newsFn    func(ctx context.Context, term string)
	photosFn  func(ctx context.Context, term string)
	news      []models.NewsItem
	photos    []models.PhotoURL

	weatherCalls atomic.Int32
	newsCalls    atomic.Int32
	photoCalls   atomic.Int32

	mu        sync.Mutex
	newsTerms []string
}

func (f *fakeFetcher) Weather(ctx context.Context, city string) *models.WeatherReading {
	f.weatherCalls.Add(1)
	if f.weatherFn == nil {
		return nil
	}
	return f.weatherFn(ctx, city)
}

func (f *fakeFetcher) News(ctx context.Context, term string) []models.NewsItem {
	f.newsCalls.Add(1)
	f.mu.Lock()
	f.newsTerms = append(f.newsTerms, term)
	f.mu.Unlock()
	if f.newsFn != nil {
		f.newsFn(ctx, term)
	}
	return f.news
}

func (f *fakeFetcher) Photos(ctx context.Context, term string) []models.PhotoURL {
	f.photoCalls.Add(1)
	if f.photosFn != nil {
		f.photosFn(ctx, term)
	}
	return f.photos
}

func (f *fakeFetcher) totalCalls() int32 {
	return f.weatherCalls.Load() + f.newsCalls.Load() + f.photoCalls.Load()
}

var testDefaults = Defaults{
	City:                "Lagos",
	NewsCategory:        "world",
	DefaultNewsCategory: "latest",
	PhotoSearchTerm:     "nature",
}

func lagosReading(ctx context.Context, city string) *models.WeatherReading {
	return &models.WeatherReading{
		Temperature: 30,
		Condition:   "clear sky",
		Humidity:    70,
		WindSpeed:   3.1,
		Icon:        "01d",
		Country:     "NG",
		Timestamp:   1700000000,
		City:        "Lagos",
	}
}

func newsItems(n int) []models.NewsItem {
	items := make([]models.NewsItem, n)
	for i := range items {
		items[i] = models.NewsItem{
			Title:   fmt.Sprintf("Headline %d", i+1),
			Link:    fmt.Sprintf("https://news.example/%d", i+1),
			Section: "World",
		}
	}
	return items
}

func photoURLs(n int) []models.PhotoURL {
	photos := make([]models.PhotoURL, n)
	for i := range photos {
		photos[i] = models.PhotoURL(fmt.Sprintf("https://img.example/%d.jpg", i+1))
	}
	return photos
}

func newTestPage(t *testing.T, f Fetcher) *Page {
	t.Helper()
	r, err := render.New(time.UTC)
	require.NoError(t, err)
	p := NewPage(context.Background(), PageOptions{
		Fetcher:        f,
		Renderer:       r,
		Defaults:       testDefaults,
		MaxQueryLength: 100,
	})
	t.Cleanup(p.Close)
	return p
}

func settled(t *testing.T, p *Page, region string) Snapshot {
	t.Helper()
	p.Wait()
	snap, err := p.Snapshot(region)
	require.NoError(t, err)
	return snap
}

func TestTrigger_RequiredInputEmpty_NoFetch(t *testing.T) {
	tests := []struct {
		region string
		query  string
		want   string
	}{
		{RegionWeather, "", "Please enter a location"},
		{RegionWeather, "   ", "Please enter a location"},
		{RegionGallery, "", "Please enter a photo search term"},
		{RegionGallery, "\t ", "Please enter a photo search term"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%q", tt.region, tt.query), func(t *testing.T) {
			f := &fakeFetcher{weatherFn: lagosReading, photos: photoURLs(6)}
			p := newTestPage(t, f)

			snap, err := p.Trigger(tt.region, tt.query)
			require.NoError(t, err)
			assert.Equal(t, StateError, snap.State)
			assert.Contains(t, string(snap.HTML), tt.want)

			p.Wait()
			assert.Zero(t, f.totalCalls(), "validation failures must not fetch")
		})
	}
}

func TestTrigger_InputTooLong(t *testing.T) {
	f := &fakeFetcher{weatherFn: lagosReading}
	r, err := render.New(time.UTC)
	require.NoError(t, err)
	p := NewPage(context.Background(), PageOptions{Fetcher: f, Renderer: r, Defaults: testDefaults, MaxQueryLength: 5})
	defer p.Close()

	snap, err := p.Trigger(RegionWeather, "Barcelona")
	require.NoError(t, err)
	assert.Equal(t, StateError, snap.State)
	assert.Contains(t, string(snap.HTML), "at most 5 characters")
	assert.Zero(t, f.totalCalls())
}

func TestTrigger_Weather_LagosScenario(t *testing.T) {
	f := &fakeFetcher{weatherFn: lagosReading}
	p := newTestPage(t, f)

	loading, err := p.Trigger(RegionWeather, "  Lagos ")
	require.NoError(t, err)
	assert.Equal(t, StateLoading, loading.State)
	assert.Equal(t, "Lagos", loading.Query)
	assert.Contains(t, string(loading.HTML), "weather-card loading")

	snap := settled(t, p, RegionWeather)
	assert.Equal(t, StateSuccess, snap.State)
	out := string(snap.HTML)
	for _, want := range []string{"30°C", "clear sky", "70%", "3.1 m/s"} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, int32(1), f.weatherCalls.Load())
}

func TestTrigger_Weather_Failure(t *testing.T) {
	p := newTestPage(t, &fakeFetcher{})

	_, err := p.Trigger(RegionWeather, "Atlantis")
	require.NoError(t, err)

	snap := settled(t, p, RegionWeather)
	assert.Equal(t, StateError, snap.State)
	assert.Contains(t, string(snap.HTML), "Unable to fetch weather data for &#34;Atlantis&#34;. Please check the city name and try again.")
}

func TestTrigger_News(t *testing.T) {
	f := &fakeFetcher{news: newsItems(6)}
	p := newTestPage(t, f)

	_, err := p.Trigger(RegionNews, "technology")
	require.NoError(t, err)

	snap := settled(t, p, RegionNews)
	assert.Equal(t, StateSuccess, snap.State)
	assert.Contains(t, string(snap.HTML), "Technology News")
	assert.Contains(t, string(snap.HTML), "Headline 6")
}

func TestTrigger_News_BlankFallsBackToDefaultCategory(t *testing.T) {
	f := &fakeFetcher{news: newsItems(2)}
	p := newTestPage(t, f)

	loading, err := p.Trigger(RegionNews, "  ")
	require.NoError(t, err)
	assert.Equal(t, StateLoading, loading.State)
	assert.Equal(t, "world", loading.Query)

	settled(t, p, RegionNews)
	assert.Equal(t, []string{"world"}, f.newsTerms)
}

func TestTrigger_News_Failure(t *testing.T) {
	p := newTestPage(t, &fakeFetcher{})

	_, err := p.Trigger(RegionNews, "science")
	require.NoError(t, err)

	snap := settled(t, p, RegionNews)
	assert.Equal(t, StateError, snap.State)
	assert.Contains(t, string(snap.HTML), "Unable to fetch science news at this time.")
}

func TestTrigger_Grid(t *testing.T) {
	tests := []struct {
		name      string
		news      []models.NewsItem
		photos    []models.PhotoURL
		wantState State
		wantCards int
	}{
		{"both present", newsItems(6), photoURLs(6), StateSuccess, 6},
		{"fewer photos", newsItems(6), photoURLs(4), StateSuccess, 4},
		{"news empty", nil, photoURLs(6), StateError, 0},
		{"photos empty", newsItems(6), nil, StateError, 0},
		{"both empty", nil, nil, StateError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{news: tt.news, photos: tt.photos}
			p := newTestPage(t, f)

			loading, err := p.Trigger(RegionGrid, "ignored")
			require.NoError(t, err)
			assert.Equal(t, StateLoading, loading.State)

			snap := settled(t, p, RegionGrid)
			assert.Equal(t, tt.wantState, snap.State)
			assert.Equal(t, int32(1), f.newsCalls.Load())
			assert.Equal(t, int32(1), f.photoCalls.Load())
			assert.Equal(t, []string{"latest"}, f.newsTerms)

			out := string(snap.HTML)
			if tt.wantState == StateError {
				assert.Contains(t, out, "Unable to fetch news and photos at this time.")
				assert.NotContains(t, out, "default-news-card")
				return
			}
			assert.Equal(t, tt.wantCards, strings.Count(out, `class="default-news-card"`))
		})
	}
}

func TestTrigger_GridFetchesConcurrently(t *testing.T) {
	photosEntered := make(chan struct{})
	releasePhotos := make(chan struct{})
	newsSawPhotos := make(chan bool, 1)

	f := &fakeFetcher{news: newsItems(6), photos: photoURLs(6)}
	// News only returns once Photos is running, so a sequential join would
	// block here until the timeout.
	f.newsFn = func(ctx context.Context, term string) {
		select {
		case <-photosEntered:
			newsSawPhotos <- true
		case <-time.After(2 * time.Second):
			newsSawPhotos <- false
		}
	}
	f.photosFn = func(ctx context.Context, term string) {
		close(photosEntered)
		<-releasePhotos
	}
	p := newTestPage(t, f)
	release := sync.OnceFunc(func() { close(releasePhotos) })
	t.Cleanup(release)

	_, err := p.Trigger(RegionGrid, "")
	require.NoError(t, err)
	require.True(t, <-newsSawPhotos, "news and photos were not in flight together")

	// News has returned; the region must still wait for photos.
	snap, err := p.Snapshot(RegionGrid)
	require.NoError(t, err)
	assert.Equal(t, StateLoading, snap.State)

	release()
	snap = settled(t, p, RegionGrid)
	assert.Equal(t, StateSuccess, snap.State)
	assert.Equal(t, 6, strings.Count(string(snap.HTML), `class="default-news-card"`))
}

func TestTrigger_Gallery(t *testing.T) {
	f := &fakeFetcher{photos: photoURLs(6)}
	p := newTestPage(t, f)

	loading, err := p.Trigger(RegionGallery, "mountains")
	require.NoError(t, err)
	assert.Contains(t, string(loading.HTML), "mountains</h2>")

	snap := settled(t, p, RegionGallery)
	assert.Equal(t, StateSuccess, snap.State)
	assert.Contains(t, string(snap.HTML), "Mountains</h2>")
	assert.Equal(t, 6, strings.Count(string(snap.HTML), `class="img-container"`))
}

func TestTrigger_Gallery_Failure(t *testing.T) {
	p := newTestPage(t, &fakeFetcher{})

	_, err := p.Trigger(RegionGallery, "zzzz")
	require.NoError(t, err)

	snap := settled(t, p, RegionGallery)
	assert.Equal(t, StateError, snap.State)
	assert.Contains(t, string(snap.HTML), "zzzz</h2>")
	assert.Contains(t, string(snap.HTML), "Try a different search term.")
}

func TestTrigger_StaleResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	f := &fakeFetcher{weatherFn: func(ctx context.Context, city string) *models.WeatherReading {
		if city == "Paris" {
			<-release
			return &models.WeatherReading{City: "Paris", Icon: "01d"}
		}
		return lagosReading(ctx, city)
	}}
	p := newTestPage(t, f)

	_, err := p.Trigger(RegionWeather, "Paris")
	require.NoError(t, err)
	second, err := p.Trigger(RegionWeather, "Lagos")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, _ := p.Snapshot(RegionWeather)
		return snap.State == StateSuccess
	}, time.Second, 5*time.Millisecond)

	close(release)
	snap := settled(t, p, RegionWeather)
	assert.Equal(t, second.Generation, snap.Generation)
	assert.Contains(t, string(snap.HTML), "Lagos, NG")
	assert.NotContains(t, string(snap.HTML), "Paris")
}

func TestTrigger_ValidationSupersedesInFlightFetch(t *testing.T) {
	release := make(chan struct{})
	f := &fakeFetcher{weatherFn: func(ctx context.Context, city string) *models.WeatherReading {
		<-release
		return lagosReading(ctx, city)
	}}
	p := newTestPage(t, f)

	_, err := p.Trigger(RegionWeather, "Lagos")
	require.NoError(t, err)
	_, err = p.Trigger(RegionWeather, "")
	require.NoError(t, err)
	close(release)

	snap := settled(t, p, RegionWeather)
	assert.Equal(t, StateError, snap.State)
	assert.Contains(t, string(snap.HTML), "Please enter a location")
}

func TestTrigger_UnknownRegion(t *testing.T) {
	p := newTestPage(t, &fakeFetcher{})
	_, err := p.Trigger("sidebar", "x")
	assert.ErrorIs(t, err, ErrUnknownRegion)
	_, err = p.Snapshot("sidebar")
	assert.ErrorIs(t, err, ErrUnknownRegion)
}

func TestTrigger_PublishesLoadingThenResult(t *testing.T) {
	p := newTestPage(t, &fakeFetcher{weatherFn: lagosReading})
	ch, cancel := p.Subscribe()
	defer cancel()

	_, err := p.Trigger(RegionWeather, "Lagos")
	require.NoError(t, err)

	first := receive(t, ch)
	assert.Equal(t, events.TypeRegion, first.Type)
	assert.Equal(t, RegionWeather, first.Region)
	assert.Equal(t, string(StateLoading), first.State)

	second := receive(t, ch)
	assert.Equal(t, string(StateSuccess), second.State)
	assert.Equal(t, first.Generation, second.Generation)
	assert.Contains(t, second.HTML, "30°C")
}

func TestBootstrap_LoadsAllRegionsWithDefaults(t *testing.T) {
	f := &fakeFetcher{weatherFn: lagosReading, news: newsItems(6), photos: photoURLs(6)}
	p := newTestPage(t, f)

	p.Bootstrap()
	p.Wait()

	for _, id := range Regions {
		snap, err := p.Snapshot(id)
		require.NoError(t, err)
		assert.Equal(t, StateSuccess, snap.State, id)
	}
	assert.Equal(t, int32(1), f.weatherCalls.Load())
	assert.Equal(t, int32(2), f.newsCalls.Load())
	assert.Equal(t, int32(2), f.photoCalls.Load())
	assert.ElementsMatch(t, []string{"latest", "world"}, f.newsTerms)
}

func TestClose_AbandonsInFlightFetch(t *testing.T) {
	f := &fakeFetcher{weatherFn: func(ctx context.Context, city string) *models.WeatherReading {
		<-ctx.Done()
		return nil
	}}
	p := newTestPage(t, f)

	_, err := p.Trigger(RegionWeather, "Lagos")
	require.NoError(t, err)
	p.Close()

	snap := settled(t, p, RegionWeather)
	assert.Equal(t, StateLoading, snap.State, "a closed page keeps its last published state")
}

func TestView(t *testing.T) {
	p := newTestPage(t, &fakeFetcher{weatherFn: lagosReading})
	_, err := p.Trigger(RegionWeather, "Lagos")
	require.NoError(t, err)
	p.Wait()

	view := p.View("https://bg.example/1.jpg", 100)
	assert.Equal(t, p.ID(), view.PageID)
	assert.Equal(t, "https://bg.example/1.jpg", view.Background)
	assert.Equal(t, string(StateSuccess), view.Weather.State)
	assert.Equal(t, string(StateIdle), view.Gallery.State)
	assert.Equal(t, "Lagos", view.Defaults.City)
	assert.Equal(t, render.DefaultCategories, view.Categories)
}

func TestCategoriesWith(t *testing.T) {
	assert.Equal(t, render.DefaultCategories, categoriesWith("world"))
	assert.Equal(t, render.DefaultCategories, categoriesWith(""))
	got := categoriesWith("travel")
	assert.Equal(t, "travel", got[0])
	assert.Len(t, got, len(render.DefaultCategories)+1)
}

func receive(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestPage_Snapshots(t *testing.T) {
	f := &fakeFetcher{news: newsItems(6), photos: photoURLs(6)}
	p := newTestPage(t, f)
	_, err := p.Trigger(RegionGallery, "")
	require.NoError(t, err)

	snaps := p.Snapshots()
	require.Len(t, snaps, len(Regions))
	for i, id := range Regions {
		assert.Equal(t, id, snaps[i].Region)
	}

	ev := snaps[3].Event()
	assert.Equal(t, events.TypeRegion, ev.Type)
	assert.Equal(t, RegionGallery, ev.Region)
	assert.Equal(t, string(StateError), ev.State)
	assert.Equal(t, uint64(1), ev.Generation)
	assert.Contains(t, ev.HTML, "Please enter a photo search term")
}
