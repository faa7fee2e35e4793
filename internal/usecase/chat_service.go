package usecase

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/access"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
)

// ChatSummary is one row of the conversation list: a contact plus its latest
// message and unread count.
type ChatSummary struct {
	Contact     model.Contact  `json:"contact"`
	LastMessage *model.Message `json:"last_message,omitempty"`
	UnreadCount int64          `json:"unread_count"`
}

// ListConversations returns the chat list for a session, ordered by most recent
// message first. Authorization runs before any data access; a denied principal
// gets ErrUnauthorized, never an empty list.
func (s *ArchiveService) ListConversations(ctx context.Context, principalID, sessionID string) ([]ChatSummary, error) {
	if err := s.authorizer.Require(ctx, principalID, sessionID, access.ActionRead); err != nil {
		return nil, err
	}

	contacts, err := s.contactRepo.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "FindContacts", sessionID)
	}
	if len(contacts) == 0 {
		return []ChatSummary{}, nil
	}

	lastMessages, err := s.messageRepo.LastBySession(ctx, sessionID)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "LastMessages", sessionID)
	}

	unreadCounts, err := s.messageRepo.UnreadBySession(ctx, sessionID)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "UnreadCounts", sessionID)
	}

	summaries := make([]ChatSummary, 0, len(contacts))
	for _, contact := range contacts {
		summary := ChatSummary{
			Contact:     contact,
			UnreadCount: unreadCounts[contact.ID],
		}
		if last, ok := lastMessages[contact.ID]; ok {
			lastCopy := last
			summary.LastMessage = &lastCopy
		}
		summaries = append(summaries, summary)
	}

	// Most recent conversation first; contacts with no messages yet sink to
	// the bottom in stable order.
	sort.SliceStable(summaries, func(i, j int) bool {
		var ti, tj int64
		if summaries[i].LastMessage != nil {
			ti = summaries[i].LastMessage.MessageTimestamp
		}
		if summaries[j].LastMessage != nil {
			tj = summaries[j].LastMessage.MessageTimestamp
		}
		return ti > tj
	})

	logger.FromContext(ctx).Debug("Listed conversations",
		zap.String("session_id", sessionID),
		zap.Int("count", len(summaries)),
	)
	return summaries, nil
}

// GetMessages returns one conversation's messages, newest first.
func (s *ArchiveService) GetMessages(ctx context.Context, principalID, sessionID, contactID string, limit, offset int) ([]model.Message, error) {
	if err := s.authorizer.Require(ctx, principalID, sessionID, access.ActionRead); err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.FindByContact(ctx, sessionID, contactID, limit, offset)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "FindMessages", contactID)
	}
	return messages, nil
}

// MarkRead flips every inbound sub-read message in a conversation to read and
// returns how many rows changed.
func (s *ArchiveService) MarkRead(ctx context.Context, principalID, sessionID, contactID string) (int64, error) {
	if err := s.authorizer.Require(ctx, principalID, sessionID, access.ActionRead); err != nil {
		return 0, err
	}

	changed, err := s.messageRepo.MarkContactRead(ctx, sessionID, contactID)
	if err != nil {
		return 0, handleRepositoryError(ctx, err, "MarkContactRead", contactID)
	}

	logger.FromContext(ctx).Debug("Conversation marked read",
		zap.String("session_id", sessionID),
		zap.String("contact_id", contactID),
		zap.Int64("changed", changed),
	)
	return changed, nil
}
