package httputil

import (
	"net/http"
	"time"

	"pfsync/config"
)

type Clients struct {
	Feed *http.Client // feed downloads, sized for multi-megabyte XML
	API  *http.Client // everything else
}

func NewClients(feedCfg *config.FeedConfig) *Clients {
	timeout := feedCfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Clients{
		Feed: &http.Client{Timeout: timeout},
		API:  &http.Client{Timeout: 30 * time.Second},
	}
}
