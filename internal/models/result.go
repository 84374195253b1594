package models

import "time"

// Error codes recorded against a URL in the batch summary.
const (
	ErrCodeUnsupportedSite = "unsupported_site"
	ErrCodeScrapeFailed    = "scrape_failed"
	ErrCodeArtifactWrite   = "artifact_write_failed"
)

type ScrapeResult struct {
	Index        int     `json:"index"`
	URL          string  `json:"url"`
	Site         string  `json:"site,omitempty"`
	Record       *Record `json:"record,omitempty"`
	ArtifactPath string  `json:"artifact_path,omitempty"`
	Partial      bool    `json:"partial,omitempty"`
	Error        *Error  `json:"error,omitempty"`
	Success      bool    `json:"success"`
}

type Error struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	URL     string    `json:"url,omitempty"`
}

func NewError(code, url string, err error) *Error {
	return &Error{
		Code:    code,
		Message: err.Error(),
		Time:    time.Now().UTC(),
		URL:     url,
	}
}

// Tag renders the error as the short "code: message" form used in summaries.
func (e *Error) Tag() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}
