package app

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"snapstreak/pkg/domain"
	"snapstreak/pkg/store"
)

// Friends manages the directed friendship graph. A mutual friendship is two
// accepted edges; Accept materializes the reverse edge so both users can walk
// the graph from their own side.
type Friends struct {
	store store.Store
}

func NewFriends(st store.Store) *Friends {
	return &Friends{store: st}
}

// CreateFriendRequest identifies the target either by id or, when the
// requester only knows the address, by email.
type CreateFriendRequest struct {
	FriendID string `json:"friendId"`
	Email    string `json:"email"`
}

// Create records a pending friend request from userID. Repeating a request
// for an existing edge returns that edge unchanged.
func (f *Friends) Create(userID string, req CreateFriendRequest) (domain.Friendship, error) {
	friendID := strings.TrimSpace(req.FriendID)
	if friendID == "" {
		email := strings.TrimSpace(req.Email)
		if email == "" {
			return domain.Friendship{}, ErrFriendTargetMissing
		}
		id, ok, err := f.store.GetUserIDByEmail(email)
		if err != nil {
			return domain.Friendship{}, err
		}
		if !ok {
			return domain.Friendship{}, ErrUserNotFound
		}
		friendID = id
	}
	if friendID == userID {
		return domain.Friendship{}, ErrSelfFriendship
	}

	if existing, ok, err := f.store.GetFriendship(userID, friendID); err != nil {
		return domain.Friendship{}, err
	} else if ok {
		return existing, nil
	}

	now := time.Now().UTC()
	edge := domain.Friendship{
		ID:        uuid.NewString(),
		UserID:    userID,
		FriendID:  friendID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.store.SaveFriendship(edge); err != nil {
		return domain.Friendship{}, err
	}
	return edge, nil
}

// Accept accepts the pending request requesterID -> accepterID and creates
// the accepted reverse edge in the same transaction.
func (f *Friends) Accept(accepterID, requesterID string) (domain.Friendship, error) {
	if err := f.store.AcceptFriendship(accepterID, requesterID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Friendship{}, ErrFriendRequestNotFound
		}
		return domain.Friendship{}, err
	}
	edge, ok, err := f.store.GetFriendship(accepterID, requesterID)
	if err != nil {
		return domain.Friendship{}, err
	}
	if !ok {
		return domain.Friendship{}, ErrFriendRequestNotFound
	}
	return edge, nil
}

// Between returns the edge connecting a and b in either direction.
func (f *Friends) Between(a, b string) (domain.Friendship, bool, error) {
	return f.store.GetFriendshipBetween(a, b)
}

// Friendships lists edges originating at userID, optionally filtered by
// acceptance state.
func (f *Friends) Friendships(userID string, accepted *bool, page, limit int) ([]domain.Friendship, int, error) {
	return f.store.ListFriendships(store.FriendshipFilter{
		UserID:     userID,
		IsAccepted: accepted,
	}, pageOf(page, limit))
}

// Requests lists pending incoming requests, i.e. edges pointing at userID
// that userID has not accepted yet.
func (f *Friends) Requests(userID string, page, limit int) ([]domain.Friendship, int, error) {
	pending := false
	return f.store.ListFriendships(store.FriendshipFilter{
		FriendID:   userID,
		IsAccepted: &pending,
	}, pageOf(page, limit))
}

// FriendsForConversations returns every accepted, unblocked edge of userID,
// used to seed conversation entries for friends with no message history.
func (f *Friends) FriendsForConversations(userID string) ([]domain.Friendship, error) {
	accepted, blocked := true, false
	edges, _, err := f.store.ListFriendships(store.FriendshipFilter{
		UserID:          userID,
		EitherDirection: true,
		IsAccepted:      &accepted,
		IsBlocked:       &blocked,
	}, store.Page{})
	return edges, err
}

// Remove deletes the friendship between userID and friendID in both
// directions. Removing an absent edge is a no-op.
func (f *Friends) Remove(userID, friendID string) error {
	return f.store.DeleteFriendship(userID, friendID)
}

func pageOf(page, limit int) store.Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return store.Page{Offset: (page - 1) * limit, Limit: limit}
}
