package cache

import "fmt"

// Key layout: domain:scope:qualifiers. Qualifiers are exactly the inputs
// that affect the cached result (user ids, page, limit, sort direction), so
// invalidation is a prefix match instead of an enumeration of literal key
// variants.

// ConversationsKey caches one page of a user's conversation list.
func ConversationsKey(userID string, page, limit int) string {
	return fmt.Sprintf("messages:conversations:%s:%d:%d", userID, page, limit)
}

// ConversationsPrefix matches every cached conversation page of a user.
func ConversationsPrefix(userID string) string {
	return fmt.Sprintf("messages:conversations:%s:*", userID)
}

// ThreadKey caches one page of the thread between two users. The pair is
// ordered so both participants share a single key space and a single
// invalidation prefix.
func ThreadKey(a, b string, page, limit int) string {
	lo, hi := orderPair(a, b)
	return fmt.Sprintf("messages:thread:%s:%s:%d:%d:desc", lo, hi, page, limit)
}

// ThreadPrefix matches every cached page of the pair's thread.
func ThreadPrefix(a, b string) string {
	lo, hi := orderPair(a, b)
	return fmt.Sprintf("messages:thread:%s:%s:*", lo, hi)
}

// UserMessagesKey caches one page of every message a user participates in,
// regardless of counterpart.
func UserMessagesKey(userID string, page, limit int) string {
	return fmt.Sprintf("messages:all:%s:%d:%d:desc", userID, page, limit)
}

// UserMessagesPrefix matches every cached all-messages page of a user.
func UserMessagesPrefix(userID string) string {
	return fmt.Sprintf("messages:all:%s:*", userID)
}

// MessageKey caches a single message lookup.
func MessageKey(id string) string {
	return "messages:single:" + id
}

func orderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
