// internal/backend/client.go
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fleet-monitor/internal/models"
)

// Client talks to the dashboard's PHP REST backend. Every call is a single
// request; there are no transactions linking the endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) GetRobots(ctx context.Context) ([]*models.Robot, error) {
	var robots []*models.Robot
	if err := c.getJSON(ctx, "/robots.php", &robots); err != nil {
		return nil, err
	}
	return robots, nil
}

func (c *Client) GetRobot(ctx context.Context, id models.ID) (*models.Robot, error) {
	var robot models.Robot
	if err := c.getJSON(ctx, "/robots/"+id.String(), &robot); err != nil {
		return nil, err
	}
	return &robot, nil
}

// UpdateRobot writes the whole record back; the backend has no field-level
// update, so callers must read-modify-write.
func (c *Client) UpdateRobot(ctx context.Context, robot *models.Robot) (*models.Robot, error) {
	var updated models.Robot
	if err := c.sendJSON(ctx, http.MethodPut, "/robots.php/"+robot.ID.String(), robot, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) GetProjects(ctx context.Context) ([]*models.Project, error) {
	var projects []*models.Project
	if err := c.getJSON(ctx, "/projects.php", &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (c *Client) GetUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	if err := c.getJSON(ctx, "/users.php", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateNotification appends one notification record and returns the id the
// backend assigned, if any.
func (c *Client) CreateNotification(ctx context.Context, n *models.Notification) (string, error) {
	var resp struct {
		NotificationID models.ID `json:"notificationId"`
		ID             models.ID `json:"id"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, "/notifications.php", n, &resp); err != nil {
		return "", err
	}
	if !resp.NotificationID.IsZero() {
		return resp.NotificationID.String(), nil
	}
	return resp.ID.String(), nil
}

func (c *Client) CreateLog(ctx context.Context, n *models.Notification) error {
	return c.sendJSON(ctx, http.MethodPost, "/logs.php", n, nil)
}

func (c *Client) SendEmail(ctx context.Context, email, message, subject string) error {
	payload := map[string]string{
		"email":   email,
		"message": message,
		"subject": subject,
	}
	return c.sendJSON(ctx, http.MethodPost, "/sendEmail.php", payload, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("backend %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("backend %s %s: decode: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
