// Package feed is the post CRUD glue around the document store: create,
// like/unlike via array union/remove, comments, soft delete, and a live feed
// projection. Media upload/compression is the hosted platform's concern and
// stays out of this core.
package feed

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"socialdesk/internal/docstore"
	"socialdesk/internal/notif"
)

const collection = "posts"

// The backend caps "in" filters at ten values, so the friends-feed filter
// truncates rather than erroring.
const maxAuthorFilter = 10

// previewLimit is the inbox row length the UI renders for post content.
const previewLimit = 50

type Author struct {
	UID    string `json:"uid"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Comment lives embedded in its post document, appended via array union.
// The id is minted client-side because array elements cannot carry
// store-resolved directives.
type Comment struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type Post struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	Likes     []string  `json:"likes"`
	Comments  []Comment `json:"comments"`
	IsDeleted bool      `json:"isDeleted,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Filter narrows the feed: by a single author, by a set of authors (friends
// feed), or neither for the general feed. Limit bounds the emitted list.
type Filter struct {
	AuthorID string
	Authors  []string
	Limit    int
}

// FriendLister resolves the accepted friends a new post fans out to.
type FriendLister interface {
	Friends(ctx context.Context, userID string) ([]string, error)
}

type Service struct {
	store    docstore.Store
	notifier *notif.Service
	friends  FriendLister
}

func NewService(store docstore.Store, notifier *notif.Service, friends FriendLister) *Service {
	return &Service{store: store, notifier: notifier, friends: friends}
}

// CreatePost persists the post, then notifies the author's accepted friends.
// The fan-out is best effort: a failure there never fails the post.
func (s *Service) CreatePost(ctx context.Context, author Author, content string) (string, error) {
	if author.UID == "" {
		return "", errors.New("feed: post needs an author")
	}
	if strings.TrimSpace(content) == "" {
		return "", errors.New("feed: post content is empty")
	}
	postID, err := s.store.Add(ctx, collection, docstore.Fields{
		"author": docstore.Fields{
			"uid":    author.UID,
			"name":   author.Name,
			"avatar": author.Avatar,
		},
		"content":   content,
		"likes":     []any{},
		"comments":  []any{},
		"createdAt": docstore.ServerTimestamp{},
	})
	if err != nil {
		return "", err
	}
	s.notifyFriends(ctx, author, postID, content)
	return postID, nil
}

// Like is idempotent: array union ignores an already-present user id. The
// post author gets a notification; liking your own post stays silent.
func (s *Service) Like(ctx context.Context, postID, userID string) error {
	doc, err := s.store.Get(ctx, collection, postID)
	if err != nil {
		return err
	}
	err = s.store.Update(ctx, collection, postID, docstore.Fields{
		"likes": docstore.ArrayUnion{Values: []any{userID}},
	})
	if err != nil {
		return err
	}

	post := docToPost(doc)
	content := preview(post.Content)
	if content == "" {
		content = "your post"
	}
	s.notify(ctx, notif.Notification{
		RecipientID: post.Author.UID,
		SenderID:    userID,
		Type:        notif.TypeLike,
		PostID:      postID,
		Content:     content,
	})
	return nil
}

func (s *Service) Unlike(ctx context.Context, postID, userID string) error {
	return s.store.Update(ctx, collection, postID, docstore.Fields{
		"likes": docstore.ArrayRemove{Values: []any{userID}},
	})
}

// AddComment appends to the post's embedded comment list and notifies the
// post author. Blank text is a silent no-op.
func (s *Service) AddComment(ctx context.Context, postID string, author Author, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	doc, err := s.store.Get(ctx, collection, postID)
	if err != nil {
		return "", err
	}

	commentID := strconv.FormatInt(time.Now().UnixMilli(), 10)
	err = s.store.Update(ctx, collection, postID, docstore.Fields{
		"comments": docstore.ArrayUnion{Values: []any{docstore.Fields{
			"id": commentID,
			"author": docstore.Fields{
				"uid":    author.UID,
				"name":   author.Name,
				"avatar": author.Avatar,
			},
			"content":   text,
			"createdAt": time.Now().UTC(),
		}}},
	})
	if err != nil {
		return "", err
	}

	post := docToPost(doc)
	s.notify(ctx, notif.Notification{
		RecipientID:  post.Author.UID,
		SenderID:     author.UID,
		SenderName:   author.Name,
		SenderAvatar: author.Avatar,
		Type:         notif.TypeComment,
		PostID:       postID,
		CommentID:    commentID,
		Content:      preview(text),
	})
	return commentID, nil
}

// DeletePost soft-deletes so comment threads hanging off the post keep a
// referent.
func (s *Service) DeletePost(ctx context.Context, postID string) error {
	return s.store.Update(ctx, collection, postID, docstore.Fields{
		"isDeleted": true,
		"content":   "",
	})
}

// WatchFeed emits matching posts newest-first. Author-filtered queries skip
// store-side ordering and sort client-side so single-field indexes suffice.
// Soft-deleted posts are filtered client-side too, so the limit is applied
// only after filtering; a store-side limit would under-fill the feed when
// deleted posts sit among the newest rows.
func (s *Service) WatchFeed(ctx context.Context, filter Filter, fn func([]Post)) (docstore.CancelFunc, error) {
	q := docstore.Query{Collection: collection}
	switch {
	case filter.AuthorID != "":
		q.Where = []docstore.Cond{
			{Field: "author.uid", Op: docstore.OpEqual, Value: filter.AuthorID},
		}
	case len(filter.Authors) > 0:
		authors := filter.Authors
		if len(authors) > maxAuthorFilter {
			authors = authors[:maxAuthorFilter]
		}
		vals := make([]any, len(authors))
		for i, a := range authors {
			vals[i] = a
		}
		q.Where = []docstore.Cond{
			{Field: "author.uid", Op: docstore.OpIn, Value: vals},
		}
	default:
		q.OrderBy = "createdAt"
		q.Desc = true
	}

	return s.store.Subscribe(ctx, q, func(snap docstore.Snapshot) {
		posts := make([]Post, 0, len(snap.Docs))
		for _, doc := range snap.Docs {
			if docstore.AsBool(doc.Fields["isDeleted"]) {
				continue
			}
			posts = append(posts, docToPost(doc))
		}
		sort.Slice(posts, func(i, j int) bool {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		})
		if filter.Limit > 0 && len(posts) > filter.Limit {
			posts = posts[:filter.Limit]
		}
		fn(posts)
	})
}

func (s *Service) notifyFriends(ctx context.Context, author Author, postID, content string) {
	if s.friends == nil || s.notifier == nil {
		return
	}
	ids, err := s.friends.Friends(ctx, author.UID)
	if err != nil {
		log.Printf("feed: resolving friends for post fan-out failed: %v", err)
		return
	}
	for _, friendID := range ids {
		s.notify(ctx, notif.Notification{
			RecipientID:  friendID,
			SenderID:     author.UID,
			SenderName:   author.Name,
			SenderAvatar: author.Avatar,
			Type:         notif.TypeFriendPost,
			PostID:       postID,
			Content:      preview(content),
		})
	}
}

func (s *Service) notify(ctx context.Context, n notif.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Create(ctx, n); err != nil {
		log.Printf("feed: notification failed: %v", err)
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLimit {
		return s
	}
	return string(r[:previewLimit]) + "..."
}

func docToPost(doc docstore.Document) Post {
	author := docstore.AsFields(doc.Fields["author"])
	comments := []Comment{}
	for _, raw := range docstore.AsSlice(doc.Fields["comments"]) {
		fields := docstore.AsFields(raw)
		commentAuthor := docstore.AsFields(fields["author"])
		comments = append(comments, Comment{
			ID: docstore.AsString(fields["id"]),
			Author: Author{
				UID:    docstore.AsString(commentAuthor["uid"]),
				Name:   docstore.AsString(commentAuthor["name"]),
				Avatar: docstore.AsString(commentAuthor["avatar"]),
			},
			Content:   docstore.AsString(fields["content"]),
			CreatedAt: docstore.AsTime(fields["createdAt"]),
		})
	}
	return Post{
		ID: doc.ID,
		Author: Author{
			UID:    docstore.AsString(author["uid"]),
			Name:   docstore.AsString(author["name"]),
			Avatar: docstore.AsString(author["avatar"]),
		},
		Content:   docstore.AsString(doc.Fields["content"]),
		Likes:     docstore.AsStringSlice(doc.Fields["likes"]),
		Comments:  comments,
		IsDeleted: docstore.AsBool(doc.Fields["isDeleted"]),
		CreatedAt: docstore.AsTime(doc.Fields["createdAt"]),
	}
}
