// Package client calls a running mlserver over HTTP
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/menta2k/mlserver/pkg/plugin"
	"github.com/menta2k/mlserver/pkg/types"
)

// Client calls the classify service
type Client struct {
	rest *resty.Client
}

// APIError is a non-success response from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mlserver responded %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

type pluginList struct {
	Names []string `json:"configured_plugin_names"`
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080"
func New(baseURL string, timeout time.Duration) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{rest: rest}
}

// Plugins lists the plugins available on the server
func (c *Client) Plugins(ctx context.Context) ([]string, error) {
	var res pluginList
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&res).
		SetError(&errorBody{}).
		Get("/services/classify")
	if err := check(resp, err, http.StatusOK); err != nil {
		return nil, err
	}
	return res.Names, nil
}

// ClassifyFile uploads an image read from r. point may be nil.
func (c *Client) ClassifyFile(ctx context.Context, pluginName, filename string, r io.Reader, point *types.Point) ([]plugin.Formatted, error) {
	req := c.rest.R().SetFileReader("imageFile", filename, r)
	return c.classify(ctx, req, pluginName, point)
}

// ClassifyPath asks the server to read the image at a path local to the server
func (c *Client) ClassifyPath(ctx context.Context, pluginName, path string, point *types.Point) ([]plugin.Formatted, error) {
	req := c.rest.R().SetFormData(map[string]string{"imagePath": path})
	return c.classify(ctx, req, pluginName, point)
}

func (c *Client) classify(ctx context.Context, req *resty.Request, pluginName string, point *types.Point) ([]plugin.Formatted, error) {
	if point != nil {
		req.SetFormData(map[string]string{
			"x": strconv.Itoa(point.X),
			"y": strconv.Itoa(point.Y),
		})
	}

	var res []plugin.Formatted
	resp, err := req.
		SetContext(ctx).
		SetPathParam("name", pluginName).
		SetResult(&res).
		SetError(&errorBody{}).
		Post("/services/classify/{name}")
	if err := check(resp, err, http.StatusCreated); err != nil {
		return nil, err
	}
	return res, nil
}

func check(resp *resty.Response, err error, expected int) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() == expected {
		return nil
	}
	msg := resp.Status()
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		msg = body.Error
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}
