package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnavailable tags database failures that are not semantic outcomes
	// (not-found, unique violation). Callers surface it as a store outage.
	ErrUnavailable = errors.New("document store unavailable")
)

func wrapErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name)
		VALUES ($1, $2)
	`, user.ID, user.DisplayName)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return wrapErr("insert user", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, wrapErr("get user", err)
	}
	return user, nil
}

// ReserveUsername claims a username for a user. Usernames are globally
// unique; a second reservation for the same name fails with ErrAlreadyExists.
func (s *PostgresStore) ReserveUsername(ctx context.Context, username, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usernames (username, user_id)
		VALUES ($1, $2)
	`, username, userID)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return wrapErr("reserve username", err)
	}
	return nil
}

// UsernameFor returns the reserved username for a user id, or "" when the
// user has not reserved one.
func (s *PostgresStore) UsernameFor(ctx context.Context, userID string) (string, error) {
	var username string
	err := s.db.QueryRowContext(ctx, `SELECT username FROM usernames WHERE user_id=$1`, userID).Scan(&username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrapErr("lookup username", err)
	}
	return username, nil
}

// UpsertWebsite creates the website record on first index and refreshes only
// metadata on later calls. The content hash key and the indexing user are
// written once and never change. Blank optional fields never clobber values
// written by an earlier index.
func (s *PostgresStore) UpsertWebsite(ctx context.Context, site Website) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO websites (content_hash, indexed_by, url, title, description, keywords, image, favicon)
		VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), NULLIF($8,''))
		ON CONFLICT (content_hash) DO UPDATE SET
			title=COALESCE(NULLIF(EXCLUDED.title,''), websites.title),
			description=COALESCE(NULLIF(EXCLUDED.description,''), websites.description),
			keywords=COALESCE(NULLIF(EXCLUDED.keywords,''), websites.keywords),
			image=COALESCE(NULLIF(EXCLUDED.image,''), websites.image),
			favicon=COALESCE(NULLIF(EXCLUDED.favicon,''), websites.favicon)
	`, site.ContentHash, site.IndexedBy, site.URL, site.Title, site.Description, site.Keywords, site.Image, site.Favicon)
	if err != nil {
		return wrapErr("upsert website", err)
	}
	return nil
}

func (s *PostgresStore) GetWebsite(ctx context.Context, contentHash string) (Website, error) {
	var site Website
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash, indexed_by, url,
			COALESCE(title,''), COALESCE(description,''), COALESCE(keywords,''),
			COALESCE(image,''), COALESCE(favicon,''), indexed_at
		FROM websites
		WHERE content_hash=$1
	`, contentHash).Scan(
		&site.ContentHash,
		&site.IndexedBy,
		&site.URL,
		&site.Title,
		&site.Description,
		&site.Keywords,
		&site.Image,
		&site.Favicon,
		&site.IndexedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Website{}, ErrNotFound
	}
	if err != nil {
		return Website{}, wrapErr("get website", err)
	}
	return site, nil
}

// CreateComment inserts a comment under its (content_hash, id) key. The id is
// caller-generated; a collision fails with ErrAlreadyExists, never an upsert.
func (s *PostgresStore) CreateComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (content_hash, id, author_id, domain, url, body)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, comment.ContentHash, comment.ID, comment.AuthorID, comment.Domain, comment.URL, comment.Body)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return wrapErr("insert comment", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, contentHash, commentID string) (Comment, error) {
	var comment Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash, id, author_id, domain, url, body, reply_count, created_at
		FROM comments
		WHERE content_hash=$1 AND id=$2
	`, contentHash, commentID).Scan(
		&comment.ContentHash,
		&comment.ID,
		&comment.AuthorID,
		&comment.Domain,
		&comment.URL,
		&comment.Body,
		&comment.ReplyCount,
		&comment.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, wrapErr("get comment", err)
	}
	return comment, nil
}

func (s *PostgresStore) UpdateCommentBody(ctx context.Context, contentHash, commentID, body string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments SET body=$3 WHERE content_hash=$1 AND id=$2
	`, contentHash, commentID, body)
	if err != nil {
		return wrapErr("update comment body", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapErr("update comment body rows", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, contentHash, commentID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM comments WHERE content_hash=$1 AND id=$2
	`, contentHash, commentID)
	if err != nil {
		return wrapErr("delete comment", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapErr("delete comment rows", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, contentHash string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_hash, id, author_id, domain, url, body, reply_count, created_at
		FROM comments
		WHERE content_hash=$1
		ORDER BY created_at DESC
	`, contentHash)
	if err != nil {
		return nil, wrapErr("list comments", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ContentHash, &item.ID, &item.AuthorID, &item.Domain, &item.URL, &item.Body, &item.ReplyCount, &item.CreatedAt); err != nil {
			return nil, wrapErr("scan comment", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate comments", err)
	}
	return items, nil
}

// CreateFlatComment writes the author's denormalized index entry. Replaying
// the write is a no-op so a retried addComment cannot duplicate it.
func (s *PostgresStore) CreateFlatComment(ctx context.Context, flat FlatComment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flat_comments (user_id, comment_id, content_hash, url, domain)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, comment_id) DO NOTHING
	`, flat.UserID, flat.CommentID, flat.ContentHash, flat.URL, flat.Domain)
	if err != nil {
		return wrapErr("insert flat comment", err)
	}
	return nil
}

func (s *PostgresStore) DeleteFlatComment(ctx context.Context, userID, commentID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM flat_comments WHERE user_id=$1 AND comment_id=$2
	`, userID, commentID)
	if err != nil {
		return wrapErr("delete flat comment", err)
	}
	return nil
}

// ToggleSiteVote applies toggle semantics to a user's vote on a website:
// repeating the same direction removes the vote, the opposite direction
// flips it in one statement.
func (s *PostgresStore) ToggleSiteVote(ctx context.Context, contentHash, userID string, vote int) error {
	var existing int
	err := s.db.QueryRowContext(ctx, `
		SELECT vote FROM site_votes WHERE content_hash=$1 AND user_id=$2
	`, contentHash, userID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return wrapErr("lookup site vote", err)
	}
	if err == nil && existing == vote {
		if _, delErr := s.db.ExecContext(ctx, `
			DELETE FROM site_votes WHERE content_hash=$1 AND user_id=$2
		`, contentHash, userID); delErr != nil {
			return wrapErr("delete site vote", delErr)
		}
		return nil
	}
	if _, upsertErr := s.db.ExecContext(ctx, `
		INSERT INTO site_votes (content_hash, user_id, vote)
		VALUES ($1, $2, $3)
		ON CONFLICT (content_hash, user_id)
		DO UPDATE SET vote=EXCLUDED.vote, updated_at=NOW()
	`, contentHash, userID, vote); upsertErr != nil {
		return wrapErr("upsert site vote", upsertErr)
	}
	return nil
}

// SiteVote returns the user's current vote on a website: +1, -1, or 0 when
// no marker exists.
func (s *PostgresStore) SiteVote(ctx context.Context, contentHash, userID string) (int, error) {
	var vote int
	err := s.db.QueryRowContext(ctx, `
		SELECT vote FROM site_votes WHERE content_hash=$1 AND user_id=$2
	`, contentHash, userID).Scan(&vote)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapErr("get site vote", err)
	}
	return vote, nil
}

func (s *PostgresStore) ToggleCommentVote(ctx context.Context, contentHash, commentID, userID string, vote int) error {
	var existing int
	err := s.db.QueryRowContext(ctx, `
		SELECT vote FROM comment_votes WHERE content_hash=$1 AND comment_id=$2 AND user_id=$3
	`, contentHash, commentID, userID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return wrapErr("lookup comment vote", err)
	}
	if err == nil && existing == vote {
		if _, delErr := s.db.ExecContext(ctx, `
			DELETE FROM comment_votes WHERE content_hash=$1 AND comment_id=$2 AND user_id=$3
		`, contentHash, commentID, userID); delErr != nil {
			return wrapErr("delete comment vote", delErr)
		}
		return nil
	}
	if _, upsertErr := s.db.ExecContext(ctx, `
		INSERT INTO comment_votes (content_hash, comment_id, user_id, vote)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash, comment_id, user_id)
		DO UPDATE SET vote=EXCLUDED.vote, updated_at=NOW()
	`, contentHash, commentID, userID, vote); upsertErr != nil {
		return wrapErr("upsert comment vote", upsertErr)
	}
	return nil
}

func (s *PostgresStore) CommentVote(ctx context.Context, contentHash, commentID, userID string) (int, error) {
	var vote int
	err := s.db.QueryRowContext(ctx, `
		SELECT vote FROM comment_votes WHERE content_hash=$1 AND comment_id=$2 AND user_id=$3
	`, contentHash, commentID, userID).Scan(&vote)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapErr("get comment vote", err)
	}
	return vote, nil
}

// ToggleSiteBookmark flips the user's bookmark marker: delete if present,
// insert if absent.
func (s *PostgresStore) ToggleSiteBookmark(ctx context.Context, contentHash, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM site_bookmarks WHERE content_hash=$1 AND user_id=$2
	`, contentHash, userID)
	if err != nil {
		return wrapErr("delete site bookmark", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapErr("delete site bookmark rows", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO site_bookmarks (content_hash, user_id)
		VALUES ($1, $2)
	`, contentHash, userID); err != nil {
		return wrapErr("insert site bookmark", err)
	}
	return nil
}

func (s *PostgresStore) SiteBookmarked(ctx context.Context, contentHash, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM site_bookmarks WHERE content_hash=$1 AND user_id=$2)
	`, contentHash, userID).Scan(&exists)
	if err != nil {
		return false, wrapErr("check site bookmark", err)
	}
	return exists, nil
}

func (s *PostgresStore) ToggleCommentBookmark(ctx context.Context, contentHash, commentID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM comment_bookmarks WHERE content_hash=$1 AND comment_id=$2 AND user_id=$3
	`, contentHash, commentID, userID)
	if err != nil {
		return wrapErr("delete comment bookmark", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapErr("delete comment bookmark rows", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO comment_bookmarks (content_hash, comment_id, user_id)
		VALUES ($1, $2, $3)
	`, contentHash, commentID, userID); err != nil {
		return wrapErr("insert comment bookmark", err)
	}
	return nil
}

func (s *PostgresStore) CommentBookmarked(ctx context.Context, contentHash, commentID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM comment_bookmarks WHERE content_hash=$1 AND comment_id=$2 AND user_id=$3)
	`, contentHash, commentID, userID).Scan(&exists)
	if err != nil {
		return false, wrapErr("check comment bookmark", err)
	}
	return exists, nil
}

// SiteFlag returns the reason of the user's existing flag on a website, with
// found=false when the user has never flagged it.
func (s *PostgresStore) SiteFlag(ctx context.Context, contentHash, userID string) (string, bool, error) {
	var reason string
	err := s.db.QueryRowContext(ctx, `
		SELECT reason FROM site_flags WHERE content_hash=$1 AND user_id=$2
	`, contentHash, userID).Scan(&reason)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("get site flag", err)
	}
	return reason, true, nil
}

func (s *PostgresStore) InsertSiteFlag(ctx context.Context, contentHash, userID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_flags (content_hash, user_id, reason)
		VALUES ($1, $2, $3)
	`, contentHash, userID, reason)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return wrapErr("insert site flag", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSiteFlagReason(ctx context.Context, contentHash, userID, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE site_flags SET reason=$3, updated_at=NOW() WHERE content_hash=$1 AND user_id=$2
	`, contentHash, userID, reason)
	if err != nil {
		return wrapErr("update site flag", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapErr("update site flag rows", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertCommentReport records the write-once report signal. Reporting the
// same comment again is a no-op.
func (s *PostgresStore) InsertCommentReport(ctx context.Context, contentHash, commentID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comment_reports (content_hash, comment_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (content_hash, comment_id, user_id) DO NOTHING
	`, contentHash, commentID, userID)
	if err != nil {
		return wrapErr("insert comment report", err)
	}
	return nil
}

func (s *PostgresStore) InsertCommentMute(ctx context.Context, contentHash, commentID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comment_mutes (content_hash, comment_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (content_hash, comment_id, user_id) DO NOTHING
	`, contentHash, commentID, userID)
	if err != nil {
		return wrapErr("insert comment mute", err)
	}
	return nil
}
