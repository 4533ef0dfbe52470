// Package authtest provides a recording router.Context for handler and
// middleware tests.
package authtest

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/goliatone/go-router"
)

type routerContext = router.Context

// Context implements the subset of router.Context used by the auth
// handlers and records what they do. Calling any other method panics.
type Context struct {
	routerContext

	Ctx            context.Context
	RequestPath    string
	RequestMethod  string
	URL            string
	Headers        map[string]string
	RequestCookies map[string]string
	// Payload is decoded into the Bind target through JSON
	Payload any
	BindErr error

	StatusCode       int
	RedirectLocation string
	RedirectStatus   int
	RenderedView     string
	RenderedData     router.ViewContext
	ResponseBody     string
	ResponseHeaders  map[string]string
	SetCookies       []*router.Cookie
	LocalsM          map[any]any
	NextCalled       bool
}

// NewContext returns a context for method and url. url may carry a query.
func NewContext(method, url string) *Context {
	p := url
	for i := 0; i < len(url); i++ {
		if url[i] == '?' {
			p = url[:i]
			break
		}
	}
	return &Context{
		Ctx:             context.Background(),
		RequestPath:     p,
		RequestMethod:   method,
		URL:             url,
		Headers:         map[string]string{},
		RequestCookies:  map[string]string{},
		ResponseHeaders: map[string]string{},
		LocalsM:         map[any]any{},
	}
}

func (c *Context) Next() error {
	c.NextCalled = true
	return nil
}

func (c *Context) Context() context.Context {
	return c.Ctx
}

func (c *Context) SetContext(ctx context.Context) {
	c.Ctx = ctx
}

func (c *Context) Path() string {
	return c.RequestPath
}

func (c *Context) Method() string {
	return c.RequestMethod
}

func (c *Context) OriginalURL() string {
	return c.URL
}

func (c *Context) Status(code int) router.Context {
	c.StatusCode = code
	return c
}

func (c *Context) SendString(body string) error {
	c.ResponseBody = body
	return nil
}

func (c *Context) Render(name string, bind any, layout ...string) error {
	c.RenderedView = name
	if vc, ok := bind.(router.ViewContext); ok {
		c.RenderedData = vc
	}
	return nil
}

func (c *Context) Redirect(location string, status ...int) error {
	c.RedirectLocation = location
	if len(status) > 0 {
		c.RedirectStatus = status[0]
	}
	return nil
}

func (c *Context) SetHeader(key, value string) router.Context {
	c.ResponseHeaders[key] = value
	return c
}

func (c *Context) Header(key string) string {
	return c.Headers[key]
}

func (c *Context) Bind(v any) error {
	if c.BindErr != nil {
		return c.BindErr
	}
	if c.Payload == nil {
		return errors.New("empty body")
	}
	raw, err := json.Marshal(c.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (c *Context) Cookie(cookie *router.Cookie) {
	c.SetCookies = append(c.SetCookies, cookie)
}

func (c *Context) Cookies(key string, defaultValue ...string) string {
	if v, ok := c.RequestCookies[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *Context) Locals(key any, value ...any) any {
	if len(value) > 0 {
		c.LocalsM[key] = value[0]
		return value[0]
	}
	return c.LocalsM[key]
}

// CookieNamed returns the last cookie set with name, or nil
func (c *Context) CookieNamed(name string) *router.Cookie {
	for i := len(c.SetCookies) - 1; i >= 0; i-- {
		if c.SetCookies[i].Name == name {
			return c.SetCookies[i]
		}
	}
	return nil
}
