// Package crawler defines the request, result, and error types shared by the
// crawl execution pipeline, along with the small interfaces (clock, ids,
// stores, publisher) its collaborators implement.
package crawler
