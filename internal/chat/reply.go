package chat

import "github.com/kestrelvaluation/securechat/internal/models"

// replyTextLen bounds the quoted text carried in a reply snapshot.
const replyTextLen = 120

// BuildReplySnapshot captures the referenced message at compose time.
// The snapshot never updates afterwards: it is a copy, not a link, so
// rendering reply context costs no join on the read path.
func BuildReplySnapshot(parent *models.Message) *models.ReplySnapshot {
	return &models.ReplySnapshot{
		MessageID:  parent.ID,
		SenderName: parent.SenderName,
		Text:       parent.PreviewText(replyTextLen),
	}
}
