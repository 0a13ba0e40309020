// Package rebrickable fetches set metadata and part lists from the
// Rebrickable catalog API.
package rebrickable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/sw33tLie/brickscope/pkg/bom"
)

const (
	DefaultBaseURL  = "https://rebrickable.com/api/v3"
	DefaultPageSize = 1000
	// maxPages bounds pagination in case "next" links loop.
	maxPages = 100
)

var (
	ErrNotFound     = errors.New("set not found on rebrickable")
	ErrUnauthorized = errors.New("rebrickable rejected the API key")
)

// SetInfo is set metadata.
type SetInfo struct {
	SetNum   string
	Name     string
	Year     int
	NumParts int
	ImageURL string
}

type Client struct {
	BaseURL  string
	Key      string
	PageSize int
	HTTP     *retryablehttp.Client
}

// New returns a client retrying 429 and 5xx responses up to retries times.
func New(baseURL, key string, retries int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rc := retryablehttp.NewClient()
	rc.Logger = log.New(io.Discard, "", 0)
	rc.RetryMax = retries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.HTTPClient.Timeout = 30 * time.Second
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Key:      key,
		PageSize: DefaultPageSize,
		HTTP:     rc,
	}
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "brickscope")
	if c.Key != "" {
		req.Header.Set("Authorization", "key "+c.Key)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case res.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("GET %s: unexpected status %d", u, res.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("GET %s: %w", u, bom.ErrInvalidJSON)
	}
	return body, nil
}

func (c *Client) setURL(setNum, suffix string) string {
	return c.BaseURL + "/lego/sets/" + url.PathEscape(setNum) + "/" + suffix
}

// Set returns the metadata of one set.
func (c *Client) Set(ctx context.Context, setID string) (SetInfo, error) {
	setNum := bom.NormalizeSetNum(setID)
	if setNum == "" {
		return SetInfo{}, ErrNotFound
	}
	body, err := c.get(ctx, c.setURL(setNum, ""))
	if err != nil {
		return SetInfo{}, err
	}
	doc := gjson.ParseBytes(body)
	return SetInfo{
		SetNum:   doc.Get("set_num").String(),
		Name:     doc.Get("name").String(),
		Year:     int(doc.Get("year").Int()),
		NumParts: int(doc.Get("num_parts").Int()),
		ImageURL: doc.Get("set_img_url").String(),
	}, nil
}

// SetParts returns every part row of a set, following pagination. Spare
// rows are returned flagged; callers building a BOM drop them.
func (c *Client) SetParts(ctx context.Context, setID string) ([]bom.Row, error) {
	setNum := bom.NormalizeSetNum(setID)
	if setNum == "" {
		return nil, ErrNotFound
	}
	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	next := fmt.Sprintf("%s?page_size=%d&inc_part_details=1", c.setURL(setNum, "parts/"), pageSize)

	var rows []bom.Row
	for page := 0; next != "" && page < maxPages; page++ {
		body, err := c.get(ctx, next)
		if err != nil {
			return nil, err
		}
		pageRows, err := bom.ParseRows(body)
		if err != nil {
			return nil, fmt.Errorf("parts page %d of %s: %w", page+1, setNum, err)
		}
		for i := range pageRows {
			pageRows[i].SetNum = setNum
		}
		rows = append(rows, pageRows...)
		next = gjson.GetBytes(body, "next").String()
	}
	return rows, nil
}
