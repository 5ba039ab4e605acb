package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client calls the REST surface. Login stores the token for the authorized routes.
type Client struct {
	http  *resty.Client
	token string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{http: resty.New().SetBaseURL(baseURL).SetTimeout(timeout)}
}

// StatusError carries the status code and error body of a failed call.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Reason)
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) Token() string { return c.token }

func (c *Client) Register(username, password string) (string, error) {
	return c.authenticate("/register", http.StatusCreated, username, password)
}

func (c *Client) Login(username, password string) (string, error) {
	return c.authenticate("/login", http.StatusOK, username, password)
}

// LoginOrRegister registers the account when the credentials are refused.
func (c *Client) LoginOrRegister(username, password string) (string, error) {
	token, err := c.Login(username, password)
	if statusErr, ok := err.(*StatusError); ok && statusErr.Code == http.StatusUnauthorized {
		return c.Register(username, password)
	}
	return token, err
}

func (c *Client) authenticate(path string, expected int, username, password string) (string, error) {
	var result tokenResponse
	if err := c.call(c.http.R().
		SetBody(credentialsRequest{Username: username, Password: password}).
		SetResult(&result), http.MethodPost, path, expected); err != nil {
		return "", err
	}
	c.token = result.Token
	return result.Token, nil
}

func (c *Client) PostMessage(recipient, content string) (MessageResponse, error) {
	var result MessageResponse
	err := c.call(c.authorized().
		SetBody(postMessageRequest{Recipient: recipient, Content: content}).
		SetResult(&result), http.MethodPost, "/message", http.StatusCreated)
	return result, err
}

func (c *Client) History(userA, userB string) ([]MessageResponse, error) {
	var result HistoryResponse
	err := c.call(c.authorized().
		SetPathParams(map[string]string{"userA": userA, "userB": userB}).
		SetResult(&result), http.MethodGet, "/history/{userA}/{userB}", http.StatusOK)
	return result.Messages, err
}

func (c *Client) Partners(user string) ([]string, error) {
	var result PartnersResponse
	err := c.call(c.authorized().
		SetPathParam("user", user).
		SetResult(&result), http.MethodGet, "/partners/{user}", http.StatusOK)
	return result.Partners, err
}

func (c *Client) authorized() *resty.Request {
	return c.http.R().SetAuthToken(c.token)
}

func (c *Client) call(request *resty.Request, method, path string, expected int) error {
	var failure errorBody
	resp, err := request.SetError(&failure).Execute(method, path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != expected {
		return &StatusError{Code: resp.StatusCode(), Reason: failure.Error}
	}
	return nil
}
