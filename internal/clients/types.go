package clients

import "fmt"

// StatusError is returned for any HTTP response with status >= 400.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

type pinRequest struct {
	PinataContent  any            `json:"pinataContent"`
	PinataMetadata map[string]any `json:"pinataMetadata,omitempty"`
}

type PinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}
