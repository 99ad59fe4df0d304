// Package friend manages friendship edges: one document per unordered user
// pair under a deterministic id, moving through pending → accepted, with
// reject/cancel/remove all deleting the edge.
package friend

import (
	"context"
	"errors"
	"log"
	"time"

	"socialdesk/internal/docstore"
	"socialdesk/internal/notif"
)

const collection = "friendships"

// Status is the friendship state as seen from one user's side.
type Status string

const (
	StatusNone            Status = "none"
	StatusPendingSent     Status = "pending_sent"
	StatusPendingReceived Status = "pending_received"
	StatusAccepted        Status = "accepted"
)

type Friendship struct {
	ID          string    `json:"id"`
	Users       []string  `json:"users"`
	RequesterID string    `json:"requesterId"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PairID derives the canonical edge id: user ids sorted ascending joined
// with "_", the same discipline the chat resolver uses.
func PairID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + "_" + userB
}

type Service struct {
	store    docstore.Store
	notifier *notif.Service
}

func NewService(store docstore.Store, notifier *notif.Service) *Service {
	return &Service{store: store, notifier: notifier}
}

// Request creates a pending edge from requester to target. Re-requesting an
// existing edge overwrites it with identical pending state, which keeps the
// operation idempotent for double-clicks.
func (s *Service) Request(ctx context.Context, requesterID, targetID string) (string, error) {
	if requesterID == "" || targetID == "" || requesterID == targetID {
		return "", errors.New("friend: request needs two distinct users")
	}
	id := PairID(requesterID, targetID)
	users := []any{requesterID, targetID}
	if targetID < requesterID {
		users = []any{targetID, requesterID}
	}
	err := s.store.Set(ctx, collection, id, docstore.Fields{
		"users":       users,
		"requesterId": requesterID,
		"status":      "pending",
		"createdAt":   docstore.ServerTimestamp{},
		"updatedAt":   docstore.ServerTimestamp{},
	})
	if err != nil {
		return "", err
	}
	s.notify(ctx, notif.Notification{
		RecipientID:  targetID,
		SenderID:     requesterID,
		Type:         notif.TypeFriendRequest,
		Content:      "sent you a friend request.",
		FriendshipID: id,
	})
	return id, nil
}

// Accept flips a pending edge to accepted. userID is the accepting side;
// the notification goes back to the original requester.
func (s *Service) Accept(ctx context.Context, friendshipID, userID string) error {
	doc, err := s.store.Get(ctx, collection, friendshipID)
	if err != nil {
		return err
	}
	err = s.store.Update(ctx, collection, friendshipID, docstore.Fields{
		"status":    "accepted",
		"updatedAt": docstore.ServerTimestamp{},
	})
	if err != nil {
		return err
	}
	s.notify(ctx, notif.Notification{
		RecipientID:  docstore.AsString(doc.Fields["requesterId"]),
		SenderID:     userID,
		Type:         notif.TypeFriendAccepted,
		Content:      "accepted your friend request.",
		FriendshipID: friendshipID,
	})
	return nil
}

// Reject, Cancel and Remove all delete the edge; they differ only in which
// side calls them and in what UI state they leave behind.
func (s *Service) Reject(ctx context.Context, friendshipID string) error {
	return s.store.Delete(ctx, collection, friendshipID)
}

func (s *Service) Cancel(ctx context.Context, friendshipID string) error {
	return s.store.Delete(ctx, collection, friendshipID)
}

func (s *Service) Remove(ctx context.Context, friendshipID string) error {
	return s.store.Delete(ctx, collection, friendshipID)
}

// Friends lists the accepted friends of a user.
func (s *Service) Friends(ctx context.Context, userID string) ([]string, error) {
	docs, err := s.store.GetAll(ctx, docstore.Query{
		Collection: collection,
		Where: []docstore.Cond{
			{Field: "users", Op: docstore.OpArrayContains, Value: userID},
			{Field: "status", Op: docstore.OpEqual, Value: "accepted"},
		},
	})
	if err != nil {
		return nil, err
	}
	friends := make([]string, 0, len(docs))
	for _, doc := range docs {
		for _, u := range docstore.AsStringSlice(doc.Fields["users"]) {
			if u != userID {
				friends = append(friends, u)
			}
		}
	}
	return friends, nil
}

// Requests lists the pending edges where userID is the receiving side.
func (s *Service) Requests(ctx context.Context, userID string) ([]Friendship, error) {
	docs, err := s.store.GetAll(ctx, docstore.Query{
		Collection: collection,
		Where: []docstore.Cond{
			{Field: "users", Op: docstore.OpArrayContains, Value: userID},
			{Field: "status", Op: docstore.OpEqual, Value: "pending"},
		},
	})
	if err != nil {
		return nil, err
	}
	requests := make([]Friendship, 0, len(docs))
	for _, doc := range docs {
		f := docToFriendship(doc)
		if f.RequesterID == userID {
			continue
		}
		requests = append(requests, f)
	}
	return requests, nil
}

// WatchStatus emits the friendship state between userID and targetID on
// every change to any of userID's edges. The query filters on one side only
// and picks the matching edge client-side, mirroring the single
// array-contains query the backend can serve without a composite index.
func (s *Service) WatchStatus(ctx context.Context, userID, targetID string, fn func(Status, string)) (docstore.CancelFunc, error) {
	q := docstore.Query{
		Collection: collection,
		Where: []docstore.Cond{
			{Field: "users", Op: docstore.OpArrayContains, Value: userID},
		},
	}
	return s.store.Subscribe(ctx, q, func(snap docstore.Snapshot) {
		for _, doc := range snap.Docs {
			users := docstore.AsStringSlice(doc.Fields["users"])
			if !containsUser(users, targetID) {
				continue
			}
			status := StatusPendingReceived
			switch {
			case docstore.AsString(doc.Fields["status"]) == "accepted":
				status = StatusAccepted
			case docstore.AsString(doc.Fields["requesterId"]) == userID:
				status = StatusPendingSent
			}
			fn(status, doc.ID)
			return
		}
		fn(StatusNone, "")
	})
}

func docToFriendship(doc docstore.Document) Friendship {
	return Friendship{
		ID:          doc.ID,
		Users:       docstore.AsStringSlice(doc.Fields["users"]),
		RequesterID: docstore.AsString(doc.Fields["requesterId"]),
		Status:      docstore.AsString(doc.Fields["status"]),
		CreatedAt:   docstore.AsTime(doc.Fields["createdAt"]),
		UpdatedAt:   docstore.AsTime(doc.Fields["updatedAt"]),
	}
}

func containsUser(users []string, id string) bool {
	for _, u := range users {
		if u == id {
			return true
		}
	}
	return false
}

func (s *Service) notify(ctx context.Context, n notif.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Create(ctx, n); err != nil {
		log.Printf("friend: notification failed: %v", err)
	}
}
