package dashboard

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"

	"github.com/kjstillabower/daily-digest/internal/models"
	"github.com/kjstillabower/daily-digest/internal/render"
	"github.com/kjstillabower/daily-digest/internal/validation"
)

// Fetcher is the adapter boundary the sections read from. Failures surface as
// a nil reading or an empty list, never as an error.
type Fetcher interface {
	Weather(ctx context.Context, city string) *models.WeatherReading
	News(ctx context.Context, term string) []models.NewsItem
	Photos(ctx context.Context, term string) []models.PhotoURL
}

// Defaults are the inputs used at bootstrap and for blank news categories.
type Defaults struct {
	City                string
	NewsCategory        string
	DefaultNewsCategory string
	PhotoSearchTerm     string
}

// section is the behavior behind one region.
type section interface {
	// prepare normalizes the trigger input. A non-empty message is a
	// validation failure shown to the user; no fetch follows.
	prepare(query string) (normalized string, message string)
	placeholder(query string) (template.HTML, error)
	// load fetches and renders. ok is false when the fetch came back empty.
	load(ctx context.Context, query string) (html template.HTML, ok bool, err error)
}

func validationMessage(err error, emptyMsg, subject string, maxLen int) string {
	switch {
	case errors.Is(err, validation.ErrQueryEmpty):
		return emptyMsg
	case errors.Is(err, validation.ErrQueryTooLong):
		return fmt.Sprintf("Please enter a %s of at most %d characters", subject, maxLen)
	default:
		return fmt.Sprintf("Please enter a valid %s", subject)
	}
}

type weatherSection struct {
	fetch  Fetcher
	r      *render.Renderer
	maxLen int
}

func (s weatherSection) prepare(query string) (string, string) {
	city, err := validation.ValidateLocation(query, s.maxLen)
	if err != nil {
		return query, validationMessage(err, "Please enter a location", "location", s.maxLen)
	}
	return city, ""
}

func (s weatherSection) placeholder(string) (template.HTML, error) {
	return s.r.WeatherPlaceholder()
}

func (s weatherSection) load(ctx context.Context, city string) (template.HTML, bool, error) {
	reading := s.fetch.Weather(ctx, city)
	if reading == nil {
		html, err := s.r.Error(fmt.Sprintf("Unable to fetch weather data for \"%s\". Please check the city name and try again.", city))
		return html, false, err
	}
	html, err := s.r.Weather(*reading)
	return html, true, err
}

type newsSection struct {
	fetch    Fetcher
	r        *render.Renderer
	fallback string
	maxLen   int
}

// prepare substitutes the default category for a blank selection.
func (s newsSection) prepare(query string) (string, string) {
	category, err := validation.ValidateSearchTerm(query, s.maxLen)
	if errors.Is(err, validation.ErrQueryEmpty) {
		return s.fallback, ""
	}
	if err != nil {
		return query, validationMessage(err, "", "news category", s.maxLen)
	}
	return category, ""
}

func (s newsSection) placeholder(string) (template.HTML, error) {
	return s.r.NewsPlaceholder()
}

func (s newsSection) load(ctx context.Context, category string) (template.HTML, bool, error) {
	items := s.fetch.News(ctx, category)
	if len(items) == 0 {
		html, err := s.r.Error(fmt.Sprintf("Unable to fetch %s news at this time.", category))
		return html, false, err
	}
	html, err := s.r.News(category, items)
	return html, true, err
}

// gridSection takes no input: it always pairs the default news category with
// the default photo term.
type gridSection struct {
	fetch    Fetcher
	r        *render.Renderer
	category string
	term     string
}

func (s gridSection) prepare(string) (string, string) {
	return "", ""
}

func (s gridSection) placeholder(string) (template.HTML, error) {
	return s.r.GridPlaceholder()
}

// load starts both fetches together and renders only once both have returned.
func (s gridSection) load(ctx context.Context, _ string) (template.HTML, bool, error) {
	var (
		wg     sync.WaitGroup
		items  []models.NewsItem
		photos []models.PhotoURL
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		items = s.fetch.News(ctx, s.category)
	}()
	go func() {
		defer wg.Done()
		photos = s.fetch.Photos(ctx, s.term)
	}()
	wg.Wait()

	if len(items) == 0 || len(photos) == 0 {
		html, err := s.r.Error("Unable to fetch news and photos at this time.")
		return html, false, err
	}
	html, err := s.r.Grid(items, photos)
	return html, true, err
}

type gallerySection struct {
	fetch  Fetcher
	r      *render.Renderer
	maxLen int
}

func (s gallerySection) prepare(query string) (string, string) {
	term, err := validation.ValidateSearchTerm(query, s.maxLen)
	if err != nil {
		return query, validationMessage(err, "Please enter a photo search term", "photo search term", s.maxLen)
	}
	return term, ""
}

func (s gallerySection) placeholder(term string) (template.HTML, error) {
	return s.r.GalleryPlaceholder(term)
}

func (s gallerySection) load(ctx context.Context, term string) (template.HTML, bool, error) {
	photos := s.fetch.Photos(ctx, term)
	if len(photos) == 0 {
		html, err := s.r.GalleryError(term)
		return html, false, err
	}
	html, err := s.r.Gallery(term, photos)
	return html, true, err
}
