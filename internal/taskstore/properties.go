package taskstore

import "time"

type queryResponse struct {
	Results    []page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

type page struct {
	ID          string              `json:"id"`
	CreatedTime string              `json:"created_time"`
	Properties  map[string]property `json:"properties"`
}

type named struct {
	Name string `json:"name"`
}

type richText struct {
	PlainText string `json:"plain_text"`
	Text      struct {
		Content string `json:"content"`
	} `json:"text"`
}

func (r richText) String() string {
	if r.PlainText != "" {
		return r.PlainText
	}
	return r.Text.Content
}

// property covers the Notion property types the task database uses. Only
// the field matching the property's type is populated.
type property struct {
	Title       []richText `json:"title"`
	RichText    []richText `json:"rich_text"`
	Select      *named     `json:"select"`
	Status      *named     `json:"status"`
	MultiSelect []named    `json:"multi_select"`
	Number      *float64   `json:"number"`
	Date        *struct {
		Start string `json:"start"`
	} `json:"date"`
}

func (p page) task() Task {
	t := Task{
		ID:            p.ID,
		Title:         p.text("Name"),
		Category:      p.choice("Category"),
		Priority:      p.choice("Priority"),
		Status:        p.choice("Status"),
		EstimatedTime: p.number("Estimated Time"),
		ActualTime:    p.number("Actual Time"),
		CreatedDate:   p.date("Created"),
		CompletedDate: p.datetime("Completed"),
		DueDate:       p.date("Due Date"),
		ScheduledAt:   p.date("Scheduled Time"),
		Description:   p.text("Description"),
	}
	if t.CreatedDate == nil {
		t.CreatedDate, _ = parseDate(p.CreatedTime)
	}
	if prop, ok := p.Properties["Tags"]; ok {
		for _, tag := range prop.MultiSelect {
			t.Tags = append(t.Tags, tag.Name)
		}
	}
	return t
}

func (p page) text(field string) string {
	prop, ok := p.Properties[field]
	if !ok {
		return ""
	}
	parts := prop.Title
	if len(parts) == 0 {
		parts = prop.RichText
	}
	if len(parts) == 0 {
		return ""
	}
	return parts[0].String()
}

func (p page) choice(field string) string {
	prop, ok := p.Properties[field]
	if !ok {
		return ""
	}
	if prop.Select != nil {
		return prop.Select.Name
	}
	if prop.Status != nil {
		return prop.Status.Name
	}
	return ""
}

func (p page) number(field string) *float64 {
	prop, ok := p.Properties[field]
	if !ok {
		return nil
	}
	return prop.Number
}

func (p page) date(field string) *time.Time {
	prop, ok := p.Properties[field]
	if !ok || prop.Date == nil {
		return nil
	}
	t, _ := parseDate(prop.Date.Start)
	return t
}

// datetime is like date but drops date-only values. A date-only completion
// would read as midnight and land every such task in hour 0.
func (p page) datetime(field string) *time.Time {
	prop, ok := p.Properties[field]
	if !ok || prop.Date == nil {
		return nil
	}
	t, dateOnly := parseDate(prop.Date.Start)
	if dateOnly {
		return nil
	}
	return t
}

// parseDate accepts the full datetime and date-only forms Notion returns.
// dateOnly reports that s carried no time of day.
func parseDate(s string) (t *time.Time, dateOnly bool) {
	if s == "" {
		return nil, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if v, err := time.Parse(layout, s); err == nil {
			return &v, false
		}
	}
	if v, err := time.Parse("2006-01-02", s); err == nil {
		return &v, true
	}
	return nil, false
}
