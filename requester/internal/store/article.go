package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/newsnexus/dbopen"
)

const articleColumns = `id, url, title, description, publication_name, published_date,
	entity_id, request_id, created_at`

// FindArticleByURL returns the article stored under url, or nil.
func (s *Store) FindArticleByURL(ctx context.Context, url string) (*Article, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE url = ?`, url)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find article: %w", err)
	}
	return a, nil
}

// CreateArticle inserts an article. It returns ErrDuplicateURL when the
// url is already stored.
func (s *Store) CreateArticle(ctx context.Context, a *Article) error {
	if a.ID == "" {
		a.ID = s.newID()
	}
	a.CreatedAt = s.stamp()
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO articles (`+articleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.URL, a.Title, a.Description, a.PublicationName, a.PublishedDate,
		a.EntityID, a.RequestID, a.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateURL
	}
	if err != nil {
		return fmt.Errorf("store: create article: %w", err)
	}
	return nil
}

// CreateArticleContent stores the body of an article.
func (s *Store) CreateArticleContent(ctx context.Context, c *ArticleContent) error {
	if c.ID == "" {
		c.ID = s.newID()
	}
	c.CreatedAt = s.stamp()
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO article_contents (id, article_id, content, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.ArticleID, c.Content, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create article content: %w", err)
	}
	return nil
}

// GetArticleContent returns the content of an article, or nil.
func (s *Store) GetArticleContent(ctx context.Context, articleID string) (*ArticleContent, error) {
	var c ArticleContent
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, article_id, content, created_at FROM article_contents WHERE article_id = ?`,
		articleID).Scan(&c.ID, &c.ArticleID, &c.Content, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get article content: %w", err)
	}
	return &c, nil
}

// ListArticles returns articles newest first. A non-empty requestID
// restricts the list to that request.
func (s *Store) ListArticles(ctx context.Context, requestID string, limit int) ([]*Article, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + articleColumns + ` FROM articles`
	args := []any{}
	if requestID != "" {
		q += ` WHERE request_id = ?`
		args = append(args, requestID)
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list articles: %w", err)
	}
	defer rows.Close()

	var result []*Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan article: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// CountArticles returns the number of stored articles.
func (s *Store) CountArticles(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count articles: %w", err)
	}
	return n, nil
}

func scanArticle(sc scanner) (*Article, error) {
	var a Article
	err := sc.Scan(&a.ID, &a.URL, &a.Title, &a.Description, &a.PublicationName, &a.PublishedDate,
		&a.EntityID, &a.RequestID, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
