package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	downloadAttempts = 3
	downloadDelay    = 500 * time.Millisecond
)

var ErrURLNotFound = errors.New("URL not found")

// Download fetches url into path, retrying transient failures. A 404
// fails right away with ErrURLNotFound. A nil client gets the default
// one.
func Download(ctx context.Context, client *http.Client, url, path string) error {
	if client == nil {
		c, err := GetHTTPClient()
		if err != nil {
			return err
		}
		client = c
	}

	return retry.Do(
		func() error {
			return download(ctx, client, url, path)
		},
		retry.Context(ctx),
		retry.Attempts(downloadAttempts),
		retry.Delay(downloadDelay),
		retry.LastErrorOnly(true),
	)
}

func download(ctx context.Context, client *http.Client, url, path string) (retErr error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("error creating HTTP Get request: %w", err))
	}
	req.Header.Set("User-Agent", clientAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error executing HTTP Get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return retry.Unrecoverable(ErrURLNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		PrintHTTPResponse(resp)
		return fmt.Errorf("error downloading file (status: %d - %s): %s", resp.StatusCode, resp.Status, url)
	}

	out, err := os.Create(path)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("error creating file %s: %w", path, err))
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("error saving downloaded content to file: %w", err)
	}

	return nil
}
