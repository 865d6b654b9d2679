package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const postgresBatchSize = 100

// articleRow is the persisted shape of an article, unique by link.
type articleRow struct {
	Link        string `gorm:"primaryKey;size:2048"`
	EventID     string `gorm:"size:40"`
	Site        string `gorm:"size:255;index"`
	Title       string `gorm:"size:1024"`
	Text        string `gorm:"type:text"`
	Authors     datatypes.JSON
	PublishDate *time.Time `gorm:"type:date;index"`
	Keywords    datatypes.JSON
	Tags        datatypes.JSON
	Thumbnail   string `gorm:"size:2048"`
	ScrapedAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (articleRow) TableName() string { return "articles" }

// postgresPublisher upserts articles into postgres through gorm.
type postgresPublisher struct {
	id  string
	db  *gorm.DB
	log Logger
}

func newPostgresPublisher(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.Postgres == nil {
		return nil, fmt.Errorf("publisher %q missing postgres configuration", cfg.ID)
	}

	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&articleRow{}); err != nil {
		return nil, fmt.Errorf("migrate articles table: %w", err)
	}

	return &postgresPublisher{id: cfg.ID, db: db, log: ensureLogger(log)}, nil
}

func (p *postgresPublisher) ID() string   { return p.id }
func (p *postgresPublisher) Type() string { return TypePostgres }

// Publish upserts a single article.
func (p *postgresPublisher) Publish(ctx context.Context, evt Event) error {
	return p.PublishBatch(ctx, []Event{evt})
}

// PublishBatch upserts the run's articles, replacing rows that share a link.
func (p *postgresPublisher) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]articleRow, 0, len(events))
	for _, evt := range events {
		row, err := toArticleRow(evt)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "link"}}, UpdateAll: true}).
		CreateInBatches(rows, postgresBatchSize)
	if res.Error != nil {
		return fmt.Errorf("upsert articles: %w", res.Error)
	}

	p.log.DebugObj("postgres publisher upserted articles", "publisher_postgres_delivery", map[string]any{
		"rows": res.RowsAffected,
	})
	return nil
}

func (p *postgresPublisher) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toArticleRow(evt Event) (articleRow, error) {
	a := evt.Article
	authors, err := jsonList(a.Author)
	if err != nil {
		return articleRow{}, err
	}
	keywords, err := jsonList(a.Keywords)
	if err != nil {
		return articleRow{}, err
	}
	tags, err := jsonList(a.Tags)
	if err != nil {
		return articleRow{}, err
	}

	row := articleRow{
		Link:      a.Link,
		EventID:   evt.ID,
		Site:      evt.Site,
		Title:     a.Title,
		Text:      a.Text,
		Authors:   authors,
		Keywords:  keywords,
		Tags:      tags,
		Thumbnail: a.Thumbnail,
		ScrapedAt: evt.ScrapedAt,
	}
	if d := a.PublishDate; d != nil {
		t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
		row.PublishDate = &t
	}
	return row, nil
}

func jsonList(values []string) (datatypes.JSON, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal list: %w", err)
	}
	return datatypes.JSON(raw), nil
}
