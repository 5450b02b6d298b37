package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/bdobrica/ilji/common/retry"
	"github.com/bdobrica/ilji/internal/ilji/text"
)

const (
	// notionTextLimit is the per rich-text object content limit.
	notionTextLimit = 2000
	// notionMaxChildren is the block limit of one pages request.
	notionMaxChildren = 100
	// notionTitleRunes bounds translation page titles.
	notionTitleRunes = 80
	// notionTitleProperty addresses the database title column by id so the
	// column can be renamed.
	notionTitleProperty = "title"
)

// NotionConfig configures the Notion adapter.
type NotionConfig struct {
	Token      string
	DatabaseID string
	// TranslationDatabaseID receives forwarded translations. Empty means
	// DatabaseID.
	TranslationDatabaseID string
	HTTPClient            *http.Client
	Retry                 retry.Config
}

// Notion creates one database page per entry and satisfies
// chat.TranslationSink.
type Notion struct {
	cfg    NotionConfig
	client *notionapi.Client
}

// NewNotion returns the adapter, or ErrNotConfigured without a token and
// database.
func NewNotion(cfg NotionConfig) (*Notion, error) {
	if cfg.Token == "" || cfg.DatabaseID == "" {
		return nil, fmt.Errorf("notion: token and database id are required: %w", ErrNotConfigured)
	}
	if cfg.TranslationDatabaseID == "" {
		cfg.TranslationDatabaseID = cfg.DatabaseID
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	// Rate limits are retried by retry.Do, so the client gives up on the
	// first 429.
	client := notionapi.NewClient(notionapi.Token(cfg.Token),
		notionapi.WithHTTPClient(hc),
		notionapi.WithRetry(1),
	)
	return &Notion{cfg: cfg, client: client}, nil
}

// Name implements Adapter.
func (n *Notion) Name() string { return "notion" }

// CreateRecord creates a page titled e.Title with a Date property and the
// body as paragraphs.
func (n *Notion) CreateRecord(ctx context.Context, e Entry) error {
	day, err := time.Parse(time.DateOnly, e.Date)
	if err != nil {
		return fmt.Errorf("notion: entry date %q: %w", e.Date, err)
	}
	start := notionapi.Date(day)
	req := &notionapi.PageCreateRequest{
		Parent: databaseParent(n.cfg.DatabaseID),
		Properties: notionapi.Properties{
			notionTitleProperty: titleProperty(e.Title),
			"Date":              notionapi.DateProperty{Date: &notionapi.DateObject{Start: &start}},
		},
		Children: paragraphs(e.Body),
	}
	return n.createPage(ctx, req)
}

// SaveTranslation creates a page in the translation database holding the
// source and its translation.
func (n *Notion) SaveTranslation(ctx context.Context, source, translated string) error {
	title, _ := text.Truncate(strings.Join(strings.Fields(source), " "), notionTitleRunes)
	children := paragraphs(source)
	children = append(children, &notionapi.DividerBlock{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeDivider},
	})
	children = append(children, paragraphs(translated)...)
	req := &notionapi.PageCreateRequest{
		Parent:     databaseParent(n.cfg.TranslationDatabaseID),
		Properties: notionapi.Properties{notionTitleProperty: titleProperty(title)},
		Children:   children,
	}
	return n.createPage(ctx, req)
}

func (n *Notion) createPage(ctx context.Context, req *notionapi.PageCreateRequest) error {
	if len(req.Children) > notionMaxChildren {
		req.Children = req.Children[:notionMaxChildren]
	}
	return retry.Do(ctx, n.cfg.Retry, func() error {
		_, err := n.client.Page.Create(ctx, req)
		return classifyNotion(ctx, err)
	})
}

// classifyNotion marks client errors permanent. Rate limits, server errors
// and transport failures stay retryable.
func classifyNotion(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	err = fmt.Errorf("notion: create page: %w", err)
	if ctx.Err() != nil {
		return retry.Permanent(err)
	}
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500 {
			return err
		}
		return retry.Permanent(err)
	}
	return err
}

// IsNotionStatus reports whether err carries a Notion API error with the
// given HTTP status.
func IsNotionStatus(err error, status int) bool {
	var apiErr *notionapi.Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func databaseParent(id string) notionapi.Parent {
	return notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: notionapi.DatabaseID(id)}
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

func titleProperty(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{Title: richText(s)}
}

// paragraphs splits s into paragraph blocks within the rich-text limit.
func paragraphs(s string) []notionapi.Block {
	var out []notionapi.Block
	for _, part := range text.Chunk(s, notionTextLimit) {
		out = append(out, &notionapi.ParagraphBlock{
			BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeParagraph},
			Paragraph:  notionapi.Paragraph{RichText: richText(part)},
		})
	}
	return out
}
