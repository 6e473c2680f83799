package app

import "errors"

var (
	// Send authorization failures, one per refusal reason.
	ErrNotFriends     = errors.New("users are not friends")
	ErrRequestPending = errors.New("friend request not accepted yet")
	ErrBlocked        = errors.New("friendship is blocked")

	ErrSelfMessage     = errors.New("cannot message yourself")
	ErrEmptyMessage    = errors.New("message needs content or an image")
	ErrReceiverMissing = errors.New("receiverId required")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotParticipant  = errors.New("not a participant of this message")
	ErrNotReceiver     = errors.New("only the receiver may mark as read")

	ErrSelfFriendship        = errors.New("cannot befriend yourself")
	ErrFriendTargetMissing   = errors.New("friendId or email required")
	ErrUserNotFound          = errors.New("user not found")
	ErrFriendRequestNotFound = errors.New("friend request not found")
)
