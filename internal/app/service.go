package app

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"marginalia/api/internal/aggregate"
	"marginalia/api/internal/auth"
	"marginalia/api/internal/config"
	"marginalia/api/internal/contenthash"
	"marginalia/api/internal/flagging"
	"marginalia/api/internal/identity"
	"marginalia/api/internal/session"
	"marginalia/api/internal/store"
	"marginalia/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Username     string
	ExpiresAt    time.Time
}

type IndexWebsiteInput struct {
	URL         string `json:"url"`
	Hash        string `json:"hash"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
	Image       string `json:"image"`
	Favicon     string `json:"favicon"`
}

type FlagWebsiteInput struct {
	URL    string `json:"url"`
	Hash   string `json:"hash"`
	Reason string `json:"reason"`
}

type SiteTargetInput struct {
	URL  string `json:"url"`
	Hash string `json:"hash"`
}

type AddCommentInput struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Hash string `json:"hash"`
	Body string `json:"body"`
}

type EditCommentInput struct {
	URL  string `json:"url"`
	Hash string `json:"hash"`
	ID   string `json:"id"`
	Body string `json:"body"`
}

type CommentTargetInput struct {
	URL  string `json:"url"`
	Hash string `json:"hash"`
	ID   string `json:"id"`
}

type documentStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	ReserveUsername(context.Context, string, string) error
	UsernameFor(context.Context, string) (string, error)
	UpsertWebsite(context.Context, store.Website) error
	GetWebsite(context.Context, string) (store.Website, error)
	CreateComment(context.Context, store.Comment) error
	GetComment(context.Context, string, string) (store.Comment, error)
	UpdateCommentBody(context.Context, string, string, string) error
	DeleteComment(context.Context, string, string) error
	ListComments(context.Context, string) ([]store.Comment, error)
	CreateFlatComment(context.Context, store.FlatComment) error
	DeleteFlatComment(context.Context, string, string) error
	ToggleSiteVote(context.Context, string, string, int) error
	SiteVote(context.Context, string, string) (int, error)
	ToggleCommentVote(context.Context, string, string, string, int) error
	CommentVote(context.Context, string, string, string) (int, error)
	ToggleSiteBookmark(context.Context, string, string) error
	SiteBookmarked(context.Context, string, string) (bool, error)
	ToggleCommentBookmark(context.Context, string, string, string) error
	CommentBookmarked(context.Context, string, string, string) (bool, error)
	SiteFlag(context.Context, string, string) (string, bool, error)
	InsertSiteFlag(context.Context, string, string, string) error
	UpdateSiteFlagReason(context.Context, string, string, string) error
	InsertCommentReport(context.Context, string, string, string) error
	InsertCommentMute(context.Context, string, string, string) error
	Ping(context.Context) error
}

type aggregateStore interface {
	Impressions(context.Context, string) (uint64, error)
	HasImpressions(context.Context, string) (bool, error)
	CommentCount(context.Context, string) (uint64, error)
	FlagCount(context.Context, string) (uint64, error)
	FlagDistribution(context.Context, string) (map[string]uint64, error)
	FlagDistributionFor(context.Context, string, string) (uint64, error)
	CumulativeWeight(context.Context, string) (float64, error)
	IncrImpressions(context.Context, string, int64) error
	IncrCommentCount(context.Context, string, int64) error
	IncrFlagCount(context.Context, string, int64) error
	IncrFlagDistribution(context.Context, string, string, int64) error
	IncrCumulativeWeight(context.Context, string, float64) error
	Ping(context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// Service coordinates every mutation: identity gate, hash integrity check,
// document write, then counter update. The document store is authoritative;
// counters are a derived view and may briefly trail it (see DESIGN.md). No
// cross-store sequence is retried here, so a retried partial failure can
// never double-increment a counter.
type Service struct {
	cfg      config.Config
	store    documentStore
	agg      aggregateStore
	sessions sessionStore
	verifier *identity.Verifier
	logger   *zap.Logger
}

func New(cfg config.Config, dataStore *store.PostgresStore, agg *aggregate.RedisStore, sessions *session.RedisStore, logger *zap.Logger) *Service {
	return newService(cfg, dataStore, agg, sessions, logger)
}

func newService(cfg config.Config, dataStore documentStore, agg aggregateStore, sessions sessionStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		agg:      agg,
		sessions: sessions,
		verifier: identity.NewVerifier(usernameDirectory{dataStore}),
		logger:   logger,
	}
}

// usernameDirectory narrows the document store to the lookup the identity
// verifier needs.
type usernameDirectory struct {
	store documentStore
}

func (d usernameDirectory) UsernameFor(ctx context.Context, userID string) (string, error) {
	return d.store.UsernameFor(ctx, userID)
}

var errNotAuthorized = errors.New("caller does not own resource")

// fail is the single operation boundary: it logs the operation name with the
// full input payload and internal error, then converts the error to its
// public kind. Internal detail never travels past this point.
func (s *Service) fail(op string, payload any, err error) error {
	s.logger.Error("operation failed",
		zap.String("op", op),
		zap.Any("payload", payload),
		zap.Error(err),
	)
	return classify(err)
}

func classify(err error) error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, identity.ErrNotAuthenticated):
		return &Error{Kind: KindNotAuthenticated, Err: err}
	case errors.Is(err, identity.ErrIncompleteProfile):
		return &Error{Kind: KindIncompleteProfile, Err: err}
	case errors.Is(err, contenthash.ErrMismatch):
		return &Error{Kind: KindIntegrityMismatch, Err: err}
	case errors.Is(err, errNotAuthorized):
		return &Error{Kind: KindNotAuthorized, Err: err}
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: KindNotFound, Err: err}
	case errors.Is(err, store.ErrAlreadyExists):
		return &Error{Kind: KindAlreadyExists, Err: err}
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, aggregate.ErrUnavailable):
		return &Error{Kind: KindStoreUnavailable, Err: err}
	default:
		return &Error{Kind: KindUnknown, Err: err}
	}
}

// assertOwner is the one ownership check shared by every author-only
// operation.
func assertOwner(ownerID, callerID string) error {
	if ownerID != callerID {
		return errNotAuthorized
	}
	return nil
}

func validation(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// Register provisions a new user: the user document, the reserved username,
// and a first session. A taken username fails the whole call.
func (s *Service) Register(ctx context.Context, displayName, username string) (Session, error) {
	const op = "register"
	displayName = strings.TrimSpace(displayName)
	username = strings.ToLower(strings.TrimSpace(username))
	if displayName == "" {
		return Session{}, s.fail(op, username, validation("display name is required"))
	}
	if username == "" {
		return Session{}, s.fail(op, username, validation("username is required"))
	}

	user := store.User{ID: util.NewID("usr"), DisplayName: displayName}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return Session{}, s.fail(op, username, err)
	}
	if err := s.store.ReserveUsername(ctx, username, user.ID); err != nil {
		return Session{}, s.fail(op, username, err)
	}
	sess, err := s.issueSession(ctx, user, username)
	if err != nil {
		return Session{}, s.fail(op, username, err)
	}
	return sess, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	const op = "refresh"
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			err = &Error{Kind: KindNotAuthenticated, Err: err}
		}
		return Session{}, s.fail(op, nil, err)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, s.fail(op, nil, err)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, s.fail(op, nil, err)
	}
	username, err := s.store.UsernameFor(ctx, userID)
	if err != nil {
		return Session{}, s.fail(op, nil, err)
	}
	sess, err := s.issueSession(ctx, user, username)
	if err != nil {
		return Session{}, s.fail(op, nil, err)
	}
	return sess, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
}

func (s *Service) issueSession(ctx context.Context, user store.User, username string) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:      user.ID,
		Name:     user.DisplayName,
		Username: username,
		JTI:      util.NewID("jti"),
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Username:     username,
		ExpiresAt:    expiresAt,
	}, nil
}

// PrincipalFromToken extracts the unverified session principal from an
// access token. Full provisioning is checked per-operation by the verifier.
func (s *Service) PrincipalFromToken(token string) (identity.Principal, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return identity.Principal{}, err
	}
	return identity.Principal{UserID: claims.Sub, Name: claims.Name}, nil
}

// IndexWebsite creates the website record on first sight of a page and acts
// as a metadata refresh on every later call. Counters are untouched;
// impression accounting arrives through the external pipeline.
func (s *Service) IndexWebsite(ctx context.Context, principal identity.Principal, input IndexWebsiteInput) error {
	const op = "indexWebsite"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return s.fail(op, input, err)
	}
	if err := contenthash.Verify(input.URL, input.Hash); err != nil {
		return s.fail(op, input, err)
	}
	if err := s.indexSite(ctx, caller, input); err != nil {
		return s.fail(op, input, err)
	}
	return nil
}

// indexSite is the one write path for website records, shared by
// IndexWebsite and the index-on-first-comment branch of AddComment.
func (s *Service) indexSite(ctx context.Context, caller identity.Identity, input IndexWebsiteInput) error {
	return s.store.UpsertWebsite(ctx, store.Website{
		ContentHash: input.Hash,
		IndexedBy:   caller.UserID,
		URL:         input.URL,
		Title:       input.Title,
		Description: input.Description,
		Keywords:    input.Keywords,
		Image:       input.Image,
		Favicon:     input.Favicon,
	})
}

// FlagWebsite records that the caller flagged the page for a reason. The
// flag count tracks unique flaggers, so re-flagging with the same reason is
// a no-op and a changed reason only moves the distribution and weight.
func (s *Service) FlagWebsite(ctx context.Context, principal identity.Principal, input FlagWebsiteInput) error {
	const op = "flagWebsite"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return s.fail(op, input, err)
	}
	if err := contenthash.Verify(input.URL, input.Hash); err != nil {
		return s.fail(op, input, err)
	}
	reason := flagging.Normalize(input.Reason)
	if !flagging.Known(reason) {
		return s.fail(op, input, validation("flag reason is not recognized"))
	}

	existing, found, err := s.store.SiteFlag(ctx, input.Hash, caller.UserID)
	if err != nil {
		return s.fail(op, input, err)
	}

	switch {
	case !found:
		if err := s.store.InsertSiteFlag(ctx, input.Hash, caller.UserID, string(reason)); err != nil {
			return s.fail(op, input, err)
		}
		if err := s.agg.IncrFlagCount(ctx, input.Hash, 1); err != nil {
			return s.fail(op, input, err)
		}
		if err := s.agg.IncrFlagDistribution(ctx, input.Hash, string(reason), 1); err != nil {
			return s.fail(op, input, err)
		}
		if err := s.agg.IncrCumulativeWeight(ctx, input.Hash, flagging.Weight(reason)); err != nil {
			return s.fail(op, input, err)
		}
	case flagging.Reason(existing) == reason:
		// Same flagger, same reason: nothing moves.
	default:
		if err := s.store.UpdateSiteFlagReason(ctx, input.Hash, caller.UserID, string(reason)); err != nil {
			return s.fail(op, input, err)
		}
		previous := flagging.Reason(existing)
		if err := s.agg.IncrFlagDistribution(ctx, input.Hash, string(previous), -1); err != nil {
			return s.fail(op, input, err)
		}
		if err := s.agg.IncrFlagDistribution(ctx, input.Hash, string(reason), 1); err != nil {
			return s.fail(op, input, err)
		}
		if err := s.agg.IncrCumulativeWeight(ctx, input.Hash, flagging.Weight(reason)-flagging.Weight(previous)); err != nil {
			return s.fail(op, input, err)
		}
	}
	return nil
}

func (s *Service) UpvoteWebsite(ctx context.Context, principal identity.Principal, input SiteTargetInput) error {
	return s.voteSite(ctx, "upvoteWebsite", principal, input, 1)
}

func (s *Service) DownvoteWebsite(ctx context.Context, principal identity.Principal, input SiteTargetInput) error {
	return s.voteSite(ctx, "downvoteWebsite", principal, input, -1)
}

func (s *Service) voteSite(ctx context.Context, op string, principal identity.Principal, input SiteTargetInput, vote int) error {
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return s.fail(op, input, err)
	}
	if err := contenthash.Verify(input.URL, input.Hash); err != nil {
		return s.fail(op, input, err)
	}
	if err := s.store.ToggleSiteVote(ctx, input.Hash, caller.UserID, vote); err != nil {
		return s.fail(op, input, err)
	}
	return nil
}

func (s *Service) BookmarkWebsite(ctx context.Context, principal identity.Principal, input SiteTargetInput) error {
	const op = "bookmarkWebsite"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return s.fail(op, input, err)
	}
	if err := contenthash.Verify(input.URL, input.Hash); err != nil {
		return s.fail(op, input, err)
	}
	if err := s.store.ToggleSiteBookmark(ctx, input.Hash, caller.UserID); err != nil {
		return s.fail(op, input, err)
	}
	return nil
}

// AddComment creates the comment document, indexing the website first when
// no impressions entry exists yet, then bumps the comment count and writes
// the author's flat index entry. A blank id gets a generated one; a supplied
// id that already exists fails, never upserts. The cross-store sequence is
// not atomic: a failure after the comment insert leaves the counter behind,
// and a retry from the top surfaces AlreadyExists on the document half.
func (s *Service) AddComment(ctx context.Context, principal identity.Principal, input AddCommentInput) (string, error) {
	const op = "addComment"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return "", s.fail(op, input, err)
	}
	if err := contenthash.Verify(input.URL, input.Hash); err != nil {
		return "", s.fail(op, input, err)
	}
	if strings.TrimSpace(input.Body) == "" {
		return "", s.fail(op, input, validation("comment body is required"))
	}
	commentID := strings.TrimSpace(input.ID)
	if commentID == "" {
		commentID = util.NewCommentID()
	}

	indexed, err := s.agg.HasImpressions(ctx, input.Hash)
	if err != nil {
		return "", s.fail(op, input, err)
	}
	if !indexed {
		if err := s.indexSite(ctx, caller, IndexWebsiteInput{URL: input.URL, Hash: input.Hash}); err != nil {
			return "", s.fail(op, input, err)
		}
	}

	domain := domainOf(input.URL)
	if err := s.store.CreateComment(ctx, store.Comment{
		ContentHash: input.Hash,
		ID:          commentID,
		AuthorID:    caller.UserID,
		Domain:      domain,
		URL:         input.URL,
		Body:        input.Body,
	}); err != nil {
		return "", s.fail(op, input, err)
	}
	if err := s.agg.IncrCommentCount(ctx, input.Hash, 1); err != nil {
		return "", s.fail(op, input, err)
	}
	if err := s.store.CreateFlatComment(ctx, store.FlatComment{
		UserID:      caller.UserID,
		CommentID:   commentID,
		ContentHash: input.Hash,
		URL:         input.URL,
		Domain:      domain,
	}); err != nil {
		return "", s.fail(op, input, err)
	}
	return commentID, nil
}

func (s *Service) EditComment(ctx context.Context, principal identity.Principal, input EditCommentInput) error {
	const op = "editComment"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return s.fail(op, input, err)
	}
	if err := contenthash.Verify(input.URL, input.Hash); err != nil {
		return s.fail(op, input, err)
	}
	if strings.TrimSpace(input.Body) == "" {
		return s.fail(op, input, validation("comment body is required"))
	}
	comment, err := s.store.GetComment(ctx, input.Hash, input.ID)
	if err != nil {
		return s.fail(op, input, err)
	}
	if err := assertOwner(comment.AuthorID, caller.UserID); err != nil {
		return s.fail(op, input, err)
	}
	if err := s.store.UpdateCommentBody(ctx, input.Hash, input.ID, input.Body); err != nil {
		return s.fail(op, input, err)
	}
	return nil
}

// DeleteComment removes the comment, decrements the comment count, and
// clears the author's flat index entry. Only the original author may delete.
func (s *Service) DeleteComment(ctx context.Context, principal identity.Principal, input CommentTargetInput) error {
	const op = "deleteComment"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return s.fail(op, input, err)
	}
	if err := contenthash.Verify(input.URL, input.Hash); err != nil {
		return s.fail(op, input, err)
	}
	comment, err := s.store.GetComment(ctx, input.Hash, input.ID)
	if err != nil {
		return s.fail(op, input, err)
	}
	if err := assertOwner(comment.AuthorID, caller.UserID); err != nil {
		return s.fail(op, input, err)
	}
	if err := s.store.DeleteComment(ctx, input.Hash, input.ID); err != nil {
		return s.fail(op, input, err)
	}
	if err := s.agg.IncrCommentCount(ctx, input.Hash, -1); err != nil {
		return s.fail(op, input, err)
	}
	if err := s.store.DeleteFlatComment(ctx, caller.UserID, input.ID); err != nil {
		return s.fail(op, input, err)
	}
	return nil
}

func (s *Service) UpvoteComment(ctx context.Context, principal identity.Principal, input CommentTargetInput) error {
	return s.voteComment(ctx, "upvoteComment", principal, input, 1)
}

func (s *Service) DownvoteComment(ctx context.Context, principal identity.Principal, input CommentTargetInput) error {
	return s.voteComment(ctx, "downvoteComment", principal, input, -1)
}

func (s *Service) voteComment(ctx context.Context, op string, principal identity.Principal, input CommentTargetInput, vote int) error {
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return s.fail(op, input, err)
	}
	if err := contenthash.Verify(input.URL, input.Hash); err != nil {
		return s.fail(op, input, err)
	}
	if err := s.store.ToggleCommentVote(ctx, input.Hash, input.ID, caller.UserID, vote); err != nil {
		return s.fail(op, input, err)
	}
	return nil
}

func (s *Service) BookmarkComment(ctx context.Context, principal identity.Principal, input CommentTargetInput) error {
	const op = "bookmarkComment"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return s.fail(op, input, err)
	}
	if err := contenthash.Verify(input.URL, input.Hash); err != nil {
		return s.fail(op, input, err)
	}
	if err := s.store.ToggleCommentBookmark(ctx, input.Hash, input.ID, caller.UserID); err != nil {
		return s.fail(op, input, err)
	}
	return nil
}

// SiteVoteFor returns the caller's current vote marker on a website: +1, -1,
// or 0 when un-voted. The extension reads these to render button state.
func (s *Service) SiteVoteFor(ctx context.Context, principal identity.Principal, hash string) (int, error) {
	const op = "getSiteVote"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return 0, s.fail(op, hash, err)
	}
	vote, err := s.store.SiteVote(ctx, hash, caller.UserID)
	if err != nil {
		return 0, s.fail(op, hash, err)
	}
	return vote, nil
}

func (s *Service) SiteBookmarkedFor(ctx context.Context, principal identity.Principal, hash string) (bool, error) {
	const op = "getSiteBookmark"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return false, s.fail(op, hash, err)
	}
	bookmarked, err := s.store.SiteBookmarked(ctx, hash, caller.UserID)
	if err != nil {
		return false, s.fail(op, hash, err)
	}
	return bookmarked, nil
}

func (s *Service) CommentVoteFor(ctx context.Context, principal identity.Principal, hash, commentID string) (int, error) {
	const op = "getCommentVote"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return 0, s.fail(op, hash, err)
	}
	vote, err := s.store.CommentVote(ctx, hash, commentID, caller.UserID)
	if err != nil {
		return 0, s.fail(op, hash, err)
	}
	return vote, nil
}

func (s *Service) CommentBookmarkedFor(ctx context.Context, principal identity.Principal, hash, commentID string) (bool, error) {
	const op = "getCommentBookmark"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return false, s.fail(op, hash, err)
	}
	bookmarked, err := s.store.CommentBookmarked(ctx, hash, commentID, caller.UserID)
	if err != nil {
		return false, s.fail(op, hash, err)
	}
	return bookmarked, nil
}

// ReportComment records a write-once report signal. Repeat reports from the
// same user are absorbed; the signal is never decremented.
func (s *Service) ReportComment(ctx context.Context, principal identity.Principal, input CommentTargetInput) error {
	const op = "reportComment"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return s.fail(op, input, err)
	}
	if err := contenthash.Verify(input.URL, input.Hash); err != nil {
		return s.fail(op, input, err)
	}
	if err := s.store.InsertCommentReport(ctx, input.Hash, input.ID, caller.UserID); err != nil {
		return s.fail(op, input, err)
	}
	return nil
}

func (s *Service) NotInterestedInComment(ctx context.Context, principal identity.Principal, input CommentTargetInput) error {
	const op = "notInterestedInComment"
	caller, err := s.verifier.Verify(ctx, principal)
	if err != nil {
		return s.fail(op, input, err)
	}
	if err := contenthash.Verify(input.URL, input.Hash); err != nil {
		return s.fail(op, input, err)
	}
	if err := s.store.InsertCommentMute(ctx, input.Hash, input.ID, caller.UserID); err != nil {
		return s.fail(op, input, err)
	}
	return nil
}

// RecordImpression is the entry point for the external impression pipeline.
// It is the one counter the orchestrator's own mutations never touch.
func (s *Service) RecordImpression(ctx context.Context, hash string) error {
	if err := s.agg.IncrImpressions(ctx, hash, 1); err != nil {
		return s.fail("recordImpression", hash, err)
	}
	return nil
}

func (s *Service) Impressions(ctx context.Context, hash string) (uint64, error) {
	n, err := s.agg.Impressions(ctx, hash)
	if err != nil {
		return 0, s.fail("getImpressions", hash, err)
	}
	return n, nil
}

func (s *Service) CommentCount(ctx context.Context, hash string) (uint64, error) {
	n, err := s.agg.CommentCount(ctx, hash)
	if err != nil {
		return 0, s.fail("getCommentCount", hash, err)
	}
	return n, nil
}

func (s *Service) FlagCount(ctx context.Context, hash string) (uint64, error) {
	n, err := s.agg.FlagCount(ctx, hash)
	if err != nil {
		return 0, s.fail("getFlagCount", hash, err)
	}
	return n, nil
}

func (s *Service) FlagDistribution(ctx context.Context, hash string) (map[string]uint64, error) {
	dist, err := s.agg.FlagDistribution(ctx, hash)
	if err != nil {
		return nil, s.fail("getFlagDistribution", hash, err)
	}
	return dist, nil
}

func (s *Service) FlagDistributionFor(ctx context.Context, hash, reason string) (uint64, error) {
	n, err := s.agg.FlagDistributionFor(ctx, hash, string(flagging.Normalize(reason)))
	if err != nil {
		return 0, s.fail("getFlagDistributionFor", hash, err)
	}
	return n, nil
}

func (s *Service) CumulativeWeight(ctx context.Context, hash string) (float64, error) {
	w, err := s.agg.CumulativeWeight(ctx, hash)
	if err != nil {
		return 0, s.fail("getCumulativeWeight", hash, err)
	}
	return w, nil
}

func (s *Service) Website(ctx context.Context, hash string) (store.Website, error) {
	site, err := s.store.GetWebsite(ctx, hash)
	if err != nil {
		return store.Website{}, s.fail("getWebsite", hash, err)
	}
	return site, nil
}

func (s *Service) Comments(ctx context.Context, hash string) ([]store.Comment, error) {
	items, err := s.store.ListComments(ctx, hash)
	if err != nil {
		return nil, s.fail("listComments", hash, err)
	}
	return items, nil
}

func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return err
	}
	return s.agg.Ping(ctx)
}

func domainOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
