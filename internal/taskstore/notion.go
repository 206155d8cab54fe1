package taskstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/chronos/internal/config"
	"github.com/TobiSchelling/chronos/internal/logging"
)

// Values written on tasks created by the scheduler.
const (
	ScheduledStatus = "Agendado IA"
	defaultCategory = "Geral"
	defaultPriority = "Média"
	defaultEstimate = 30
)

// StatusError is returned when Notion answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	hint := ""
	switch e.Code {
	case http.StatusUnauthorized:
		hint = " (token invalid or expired)"
	case http.StatusBadRequest:
		hint = " (database configuration rejected)"
	case http.StatusNotFound:
		hint = " (database not found or not shared with the integration)"
	}
	return fmt.Sprintf("notion API returned %d%s: %s", e.Code, hint, e.Body)
}

// NotionStore is a Store backed by a Notion database.
type NotionStore struct {
	baseURL    string
	token      string
	databaseID string
	version    string
	client     *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	now        func() time.Time
}

// NewNotionStore creates a Notion client from the task store config. The
// token is read once from the configured environment variable.
func NewNotionStore(cfg config.TaskStore, logger *zap.Logger) (*NotionStore, error) {
	token := cfg.Token()
	if token == "" {
		return nil, fmt.Errorf("notion token not set (env %s)", cfg.TokenEnv)
	}
	if cfg.DatabaseID == "" {
		return nil, errors.New("notion database_id not configured")
	}
	logger = logging.OrNop(logger)
	return &NotionStore{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      token,
		databaseID: cfg.DatabaseID,
		version:    cfg.NotionVersion,
		client:     &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:     logger.Named("notion"),
		now:        time.Now,
	}, nil
}

// RecentTasks queries tasks whose Created date falls within the window,
// newest first, following pagination.
func (n *NotionStore) RecentTasks(ctx context.Context, window time.Duration) ([]Task, error) {
	since := n.now().Add(-window)
	query := map[string]any{
		"filter": map[string]any{
			"property": "Created",
			"date":     map[string]any{"after": since.Format(time.RFC3339)},
		},
		"sorts":     []map[string]string{{"property": "Created", "direction": "descending"}},
		"page_size": 100,
	}

	var tasks []Task
	for {
		var resp queryResponse
		if err := n.do(ctx, http.MethodPost, "/databases/"+n.databaseID+"/query", query, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Results {
			tasks = append(tasks, p.task())
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		query["start_cursor"] = resp.NextCursor
	}

	n.logger.Debug("fetched tasks", zap.Int("count", len(tasks)), zap.Duration("window", window))
	return tasks, nil
}

// Create adds a page for the task and returns the new page ID.
func (n *NotionStore) Create(ctx context.Context, t NewTask) (string, error) {
	body := map[string]any{
		"parent":     map[string]string{"database_id": n.databaseID},
		"properties": createProperties(t),
	}
	var page struct {
		ID string `json:"id"`
	}
	if err := n.do(ctx, http.MethodPost, "/pages", body, &page); err != nil {
		return "", err
	}
	n.logger.Info("created task", zap.String("id", page.ID), zap.String("title", t.Title))
	return page.ID, nil
}

// Update patches the given fields on an existing page.
func (n *NotionStore) Update(ctx context.Context, id string, f Fields) error {
	props := map[string]any{}
	if f.Status != nil {
		props["Status"] = selectValue(*f.Status)
	}
	if f.ActualTime != nil {
		props["Actual Time"] = map[string]any{"number": *f.ActualTime}
	}
	if f.Rating != nil {
		props["User Rating"] = map[string]any{"number": *f.Rating}
	}
	if len(props) == 0 {
		return nil
	}
	return n.do(ctx, http.MethodPatch, "/pages/"+id, map[string]any{"properties": props}, nil)
}

func (n *NotionStore) do(ctx context.Context, method, path string, body, out any) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, n.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", n.version)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding notion response: %w", err)
	}
	return nil
}

func createProperties(t NewTask) map[string]any {
	title := orDefault(t.Title, "Nova Tarefa")
	estimate := t.EstimatedTime
	if estimate == 0 {
		estimate = defaultEstimate
	}
	return map[string]any{
		"Name":           map[string]any{"title": textValue(title)},
		"Category":       selectValue(orDefault(t.Category, defaultCategory)),
		"Priority":       selectValue(orDefault(t.Priority, defaultPriority)),
		"Status":         selectValue(ScheduledStatus),
		"Estimated Time": map[string]any{"number": estimate},
		"Scheduled Time": map[string]any{"date": map[string]string{"start": t.ScheduledAt.Format(time.RFC3339)}},
		"Description":    map[string]any{"rich_text": textValue(t.Description)},
		"AI Confidence":  map[string]any{"number": t.Confidence},
		"AI Reasoning":   map[string]any{"rich_text": textValue(t.Reasoning)},
	}
}

func selectValue(name string) map[string]any {
	return map[string]any{"select": map[string]string{"name": name}}
}

func textValue(s string) []map[string]any {
	return []map[string]any{{"text": map[string]string{"content": s}}}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
