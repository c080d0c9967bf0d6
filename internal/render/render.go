// Package render builds the dashboard's HTML: the full page document and the
// per-region fragments pushed to the browser. Everything that originates from
// an upstream API goes through html/template, so titles, links and search
// terms are escaped for the context they land in.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kjstillabower/daily-digest/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// PlaceholderTiles is the number of loading tiles shown by the grid and gallery placeholders.
const PlaceholderTiles = 6

// StaggerStep is the entrance delay added per item in list fragments.
const StaggerStep = 100 * time.Millisecond

const (
	weatherIconURL = "https://openweathermap.org/img/w/%s.png"
	dateLayout     = "Monday, January 2, 2006"
	timeLayout     = "03:04 PM"
)

// DefaultCategories are the news categories offered by the category select.
var DefaultCategories = []string{"world", "technology", "business", "sport", "science", "culture"}

// Renderer executes the parsed templates. Safe for concurrent use.
type Renderer struct {
	tmpl *template.Template
	loc  *time.Location
}

// New parses the embedded templates. loc is the zone used to display weather
// observation times; nil means UTC.
func New(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	tmpl, err := template.New("dashboard").Funcs(template.FuncMap{
		"delay": staggerDelay,
		"title": Title,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, loc: loc}, nil
}

// Static returns the embedded stylesheet and script, rooted at their directory.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Title capitalizes the first letter of each word, leaving the rest as typed.
// A Caser holds state, so one is built per call.
func Title(s string) string {
	return cases.Title(language.English, cases.NoLower).String(s)
}

func staggerDelay(i int) int64 {
	return int64(i) * StaggerStep.Milliseconds()
}

func (r *Renderer) fragment(name string, data interface{}) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	// Output of html/template is already escaped.
	return template.HTML(buf.String()), nil
}

// Error renders the shared error fragment with msg as its text.
func (r *Renderer) Error(msg string) (template.HTML, error) {
	return r.fragment("error", msg)
}

func (r *Renderer) WeatherPlaceholder() (template.HTML, error) {
	return r.fragment("loading-weather", nil)
}

func (r *Renderer) NewsPlaceholder() (template.HTML, error) {
	return r.fragment("loading-news", nil)
}

func (r *Renderer) GridPlaceholder() (template.HTML, error) {
	return r.fragment("loading-grid", make([]struct{}, PlaceholderTiles))
}

// GalleryPlaceholder shows the search term as typed above the loading tiles.
func (r *Renderer) GalleryPlaceholder(term string) (template.HTML, error) {
	return r.fragment("loading-gallery", struct {
		Term  string
		Tiles []struct{}
	}{term, make([]struct{}, PlaceholderTiles)})
}

type weatherView struct {
	IconURL     string
	City        string
	Country     string
	Temperature int
	Condition   string
	Humidity    int
	WindSpeed   string
	Date        string
	Time        string
}

// Weather renders the weather card for w.
func (r *Renderer) Weather(w models.WeatherReading) (template.HTML, error) {
	observed := time.Unix(w.Timestamp, 0).In(r.loc)
	return r.fragment("weather", weatherView{
		IconURL:     fmt.Sprintf(weatherIconURL, url.PathEscape(w.Icon)),
		City:        w.City,
		Country:     w.Country,
		Temperature: w.Temperature,
		Condition:   w.Condition,
		Humidity:    w.Humidity,
		WindSpeed:   strconv.FormatFloat(w.WindSpeed, 'f', -1, 64),
		Date:        observed.Format(dateLayout),
		Time:        observed.Format(timeLayout),
	})
}

// News renders the "<Category> News" heading followed by one card per item.
func (r *Renderer) News(category string, items []models.NewsItem) (template.HTML, error) {
	return r.fragment("news", struct {
		Heading string
		Items   []models.NewsItem
	}{Title(category), items})
}

type gridCard struct {
	Item  models.NewsItem
	Photo models.PhotoURL
}

// Grid pairs news item i with photo i. Pairs stop at the shorter list.
func (r *Renderer) Grid(items []models.NewsItem, photos []models.PhotoURL) (template.HTML, error) {
	n := len(items)
	if len(photos) < n {
		n = len(photos)
	}
	cards := make([]gridCard, n)
	for i := 0; i < n; i++ {
		cards[i] = gridCard{Item: items[i], Photo: photos[i]}
	}
	return r.fragment("grid", cards)
}

// Gallery renders the capitalized term heading followed by the photos.
func (r *Renderer) Gallery(term string, photos []models.PhotoURL) (template.HTML, error) {
	return r.fragment("gallery", struct {
		Heading string
		Term    string
		Photos  []models.PhotoURL
	}{Title(term), term, photos})
}

// GalleryError keeps the gallery heading and explains that term found nothing.
func (r *Renderer) GalleryError(term string) (template.HTML, error) {
	return r.fragment("gallery-error", term)
}

// RegionView is a region's state and current fragment as embedded in the page.
type RegionView struct {
	State string
	HTML  template.HTML
}

// PageDefaults are the values pre-filled into the page's inputs.
type PageDefaults struct {
	City            string
	NewsCategory    string
	PhotoSearchTerm string
}

// PageView is everything the full document needs.
type PageView struct {
	PageID         string
	Background     string
	Defaults       PageDefaults
	Categories     []string
	MaxQueryLength int
	Weather        RegionView
	Grid           RegionView
	News           RegionView
	Gallery        RegionView
}

// Page writes the full dashboard document to w.
func (r *Renderer) Page(w io.Writer, view PageView) error {
	if len(view.Categories) == 0 {
		view.Categories = DefaultCategories
	}
	if err := r.tmpl.ExecuteTemplate(w, "page", view); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}
