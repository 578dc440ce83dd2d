// Package topics defines the conversation-scoped push-event topics used on
// the bus. Every topic is scoped to exactly one conversation, so cross-topic
// ordering is never assumed; each payload type is safe to apply in any
// arrival order, including duplicates.
package topics

import (
	"fmt"

	"github.com/estiakahmed98/chatsync/internal/domain"
	"github.com/estiakahmed98/chatsync/internal/pubsub"
)

// MessageNew carries a full authoritative message, including the server echo
// of a locally sent one.
func MessageNew(conversationID string) pubsub.Event[domain.Message] {
	return pubsub.NewEvent[domain.Message](name(conversationID, "message.new"))
}

// Typing carries a short-lived typing signal.
func Typing(conversationID string) pubsub.Event[domain.TypingEvent] {
	return pubsub.NewEvent[domain.TypingEvent](name(conversationID, "typing"))
}

// ReceiptUpdate carries a batch of delivery/read annotations.
func ReceiptUpdate(conversationID string) pubsub.Event[domain.ReceiptUpdateEvent] {
	return pubsub.NewEvent[domain.ReceiptUpdateEvent](name(conversationID, "receipt.update"))
}

// ReactionUpdate carries the authoritative reaction aggregates for one message.
func ReactionUpdate(conversationID string) pubsub.Event[domain.ReactionUpdateEvent] {
	return pubsub.NewEvent[domain.ReactionUpdateEvent](name(conversationID, "reaction.update"))
}

// ConversationRead advances a participant's read pointer.
func ConversationRead(conversationID string) pubsub.Event[domain.ConversationReadEvent] {
	return pubsub.NewEvent[domain.ConversationReadEvent](name(conversationID, "read"))
}

// MemberRoster carries the full member roster after a successful channel
// subscription.
func MemberRoster(conversationID string) pubsub.Event[domain.MembershipEvent] {
	return pubsub.NewEvent[domain.MembershipEvent](name(conversationID, "member.roster"))
}

// MemberAdded signals a single member joining the channel.
func MemberAdded(conversationID string) pubsub.Event[domain.MembershipEvent] {
	return pubsub.NewEvent[domain.MembershipEvent](name(conversationID, "member.added"))
}

// MemberRemoved signals a single member leaving the channel.
func MemberRemoved(conversationID string) pubsub.Event[domain.MembershipEvent] {
	return pubsub.NewEvent[domain.MembershipEvent](name(conversationID, "member.removed"))
}

// All returns every topic name scoped to one conversation, for consumers
// that relay the whole channel rather than a single event kind.
func All(conversationID string) []string {
	suffixes := []string{
		"message.new",
		"typing",
		"receipt.update",
		"reaction.update",
		"read",
		"member.roster",
		"member.added",
		"member.removed",
	}
	names := make([]string, len(suffixes))
	for i, s := range suffixes {
		names[i] = name(conversationID, s)
	}
	return names
}

func name(conversationID, suffix string) string {
	return fmt.Sprintf("chat.conversation.%s.%s", conversationID, suffix)
}
