package main

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// newClient returns a resty client bound to the service base URL.
func newClient(apiURL, apiKey string) *resty.Client {
	c := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(60 * time.Second)
	if apiKey != "" {
		c.SetHeader("X-API-Key", apiKey)
	}
	if verboseFlag {
		c.SetDebug(true)
	}
	return c
}

// checkResponse turns transport failures and non-2xx answers into errors.
func checkResponse(resp *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return resp, nil
}
