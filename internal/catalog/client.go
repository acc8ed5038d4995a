// Package catalog provides an HTTP implementation of the purchase engine's
// catalog client.
package catalog

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/purchasekit/internal/purchase"
)

// Client fetches catalog metadata from a JSON HTTP endpoint:
//
//	GET {base}/products?ids=a,b,c
//	{"products": [{"id": "...", "title": "...", "description": "...",
//	               "price": "4.99", "locale": "en_US"}],
//	 "invalid": ["..."]}
//
// Any transport error or non-200 status is returned as an error, which the
// scheduler treats as transient and retries.
type Client struct {
	base string
	http *http.Client
}

var _ purchase.CatalogClient = (*Client)(nil)

// NewClient creates a Client for the given base URL. When httpClient is nil a
// default with a 30 second timeout is used; per-request cancellation still
// comes from the caller's context.
func NewClient(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		http: httpClient,
	}
}

// Fetch looks up metadata for the given identifiers.
func (c *Client) Fetch(ctx context.Context, ids []string) (*purchase.CatalogResult, error) {
	u := c.base + "/products?ids=" + url.QueryEscape(strings.Join(ids, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request catalog")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("catalog responded %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	res, err := decodeResult(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return res, nil
}

func decodeResult(body []byte) (*purchase.CatalogResult, error) {
	var res purchase.CatalogResult
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				if err != nil {
					return err
				}
				res.Products = append(res.Products, p)
				return nil
			})
		case "invalid":
			return d.Arr(func(d *jx.Decoder) error {
				id, err := d.Str()
				if err != nil {
					return err
				}
				res.InvalidIDs = append(res.InvalidIDs, id)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	return &res, nil
}

func decodeProduct(d *jx.Decoder) (purchase.CatalogProduct, error) {
	var p purchase.CatalogProduct
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			p.ID = v
		case "title":
			v, err := d.Str()
			if err != nil {
				return err
			}
			p.Details.Title = v
		case "description":
			v, err := d.Str()
			if err != nil {
				return err
			}
			p.Details.Description = v
		case "price":
			raw, err := d.Str()
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(raw)
			if err != nil {
				return errors.Wrapf(err, "parse price %q", raw)
			}
			p.Details.Price = price
		case "locale":
			v, err := d.Str()
			if err != nil {
				return err
			}
			p.Details.Locale = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return p, err
	}
	if p.ID == "" {
		return p, errors.New("product entry missing id")
	}
	return p, nil
}
