package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/clock"
)

const postColumns = `id, title, message, name, creator, tags, selected_file, likes, comments, created_at`

// PostgresStore keeps posts in the `posts` table.
// Likes and comments are TEXT[] columns mutated by single UPDATE statements, so
// concurrent togglers serialize on the row lock instead of overwriting each other.
type PostgresStore struct {
	db    *pgxpool.Pool
	clock clock.Clock
}

// NewPostgresStore creates a PostgresStore on top of an existing pool.
func NewPostgresStore(db *pgxpool.Pool, c clock.Clock) *PostgresStore {
	return &PostgresStore{db: db, clock: c}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) List(ctx context.Context, offset, limit int) ([]Post, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM posts`).Scan(&total); err != nil {
		return nil, 0, apperror.NewDatabaseError("failed to count posts", pkgerrors.Wrap(err, "counting posts failed"))
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+postColumns+` FROM posts ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, apperror.NewDatabaseError("failed to list posts", pkgerrors.Wrap(err, "selecting posts failed"))
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Post, error) {
	postID, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.one(ctx, "get", `SELECT `+postColumns+` FROM posts WHERE id = $1`, postID)
}

func (s *PostgresStore) Search(ctx context.Context, q SearchQuery) ([]Post, error) {
	if q.IsEmpty() {
		return []Post{}, nil
	}

	var conditions []string
	var args []interface{}
	if q.Title != "" {
		args = append(args, "%"+escapeLike(q.Title)+"%")
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	if len(q.Tags) > 0 {
		args = append(args, q.Tags)
		conditions = append(conditions, fmt.Sprintf("tags && $%d::text[]", len(args)))
	}

	query := `SELECT ` + postColumns + ` FROM posts WHERE ` + strings.Join(conditions, " OR ") +
		` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperror.NewDatabaseError("failed to search posts", pkgerrors.Wrap(err, "searching posts failed"))
	}
	return collectPosts(rows)
}

func (s *PostgresStore) Create(ctx context.Context, post *Post) error {
	id, err := uuid.NewV7()
	if err != nil {
		return apperror.NewInternalError("failed to generate post id", err)
	}
	post.ID = id.String()
	post.CreatedAt = s.clock.NowUtc()
	post.Tags = nonNil(post.Tags)
	post.Likes = []string{}
	post.Comments = []string{}

	_, err = s.db.Exec(ctx,
		`INSERT INTO posts (`+postColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, post.Title, post.Message, post.Name, post.Creator, post.Tags, post.SelectedFile,
		post.Likes, post.Comments, post.CreatedAt)
	if err != nil {
		return apperror.NewDatabaseError("failed to create post", pkgerrors.Wrap(err, "inserting post failed"))
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, patch PostPatch) (*Post, error) {
	postID, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return s.Get(ctx, id)
	}

	args := []interface{}{postID}
	var sets []string
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Message != nil {
		set("message", *patch.Message)
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Tags != nil {
		set("tags", nonNil(*patch.Tags))
	}
	if patch.SelectedFile != nil {
		set("selected_file", *patch.SelectedFile)
	}

	query := `UPDATE posts SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + postColumns
	return s.one(ctx, "update", query, args...)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	postID, err := ParseID(id)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM posts WHERE id = $1`, postID)
	if err != nil {
		return apperror.NewDatabaseError("failed to delete post", pkgerrors.Wrap(err, "deleting post failed"))
	}
	if tag.RowsAffected() == 0 {
		return notFound()
	}
	return nil
}

func (s *PostgresStore) ToggleLike(ctx context.Context, id string, userID string) (*Post, error) {
	postID, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.one(ctx, "toggle like on", `
		UPDATE posts
		SET likes = CASE
			WHEN $2::text = ANY(likes) THEN array_remove(likes, $2::text)
			ELSE array_append(likes, $2::text)
		END
		WHERE id = $1
		RETURNING `+postColumns, postID, userID)
}

func (s *PostgresStore) AppendComment(ctx context.Context, id string, value string) (*Post, error) {
	postID, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.one(ctx, "comment on",
		`UPDATE posts SET comments = array_append(comments, $2::text) WHERE id = $1 RETURNING `+postColumns,
		postID, value)
}

// one runs a statement returning at most one post row.
func (s *PostgresStore) one(ctx context.Context, verb string, query string, args ...interface{}) (*Post, error) {
	post, err := scanPost(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound()
		}
		return nil, apperror.NewDatabaseError(fmt.Sprintf("failed to %s post", verb), pkgerrors.Wrapf(err, "%s post %v", verb, args[0]))
	}
	return post, nil
}

func scanPost(row pgx.Row) (*Post, error) {
	var p Post
	var id uuid.UUID
	if err := row.Scan(&id, &p.Title, &p.Message, &p.Name, &p.Creator, &p.Tags, &p.SelectedFile,
		&p.Likes, &p.Comments, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ID = id.String()
	p.CreatedAt = p.CreatedAt.UTC()
	p.Tags = nonNil(p.Tags)
	p.Likes = nonNil(p.Likes)
	p.Comments = nonNil(p.Comments)
	return &p, nil
}

func collectPosts(rows pgx.Rows) ([]Post, error) {
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, apperror.NewDatabaseError("failed to read post row", pkgerrors.Wrap(err, "scanning post failed"))
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewDatabaseError("failed to read posts", pkgerrors.Wrap(err, "iterating posts failed"))
	}
	return posts, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern (backslash is the default escape).
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
