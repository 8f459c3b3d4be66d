package crawler

import (
	"net/http"
	"time"

	"github.com/JakeFAU/crawlqueue/internal/queue"
)

// Response is the part of the fetched document the crawl keeps.
type Response struct {
	OK         bool        `json:"ok"`
	Status     int         `json:"status"`
	StatusText string      `json:"statusText"`
	Headers    http.Header `json:"headers"`
	URL        string      `json:"url"`
	Body       string      `json:"body,omitempty"`
}

// Cookie is a browser cookie observed after the fetch.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty"`
}

// Page is what a Browser returns for one URL.
type Page struct {
	Response Response
	// Links are absolute hrefs in document order, unfiltered.
	Links    []string
	Cookies  []Cookie
	Duration time.Duration
}

// Navigation tunes how a Browser loads a page.
type Navigation struct {
	// WaitUntil is a CSS selector the headless engine waits for before reading the DOM.
	WaitUntil string        `mapstructure:"wait_until"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// FetchRequest is handed to the Before hooks, which may adjust it, and then to the Browser.
type FetchRequest struct {
	URL        string
	Headers    http.Header
	Navigation Navigation
}

// Result is produced for every completed unit of work.
type Result struct {
	Queue    string          `json:"queue"`
	Job      queue.JobRecord `json:"job"`
	Cookies  []Cookie        `json:"cookies"`
	Data     any             `json:"data"`
	Links    []string        `json:"links"`
	Response Response        `json:"response"`
}
