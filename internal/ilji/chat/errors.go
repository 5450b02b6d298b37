package chat

import (
	"errors"
	"fmt"
	"math"

	"github.com/bdobrica/ilji/internal/ilji/guard"
	"github.com/bdobrica/ilji/internal/ilji/history"
	"github.com/bdobrica/ilji/internal/ilji/llm"
)

// InputError rejects a message before any work is done.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return "chat: invalid input: " + e.Reason }

// CollaboratorError wraps a failure of an external collaborator (the model,
// a sync adapter) on the reply path.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("chat: %s: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// User-visible replies for each error class.
const (
	MsgEmptyInput  = "⚠️ 메시지가 비어 있어요."
	MsgStorage     = "⚠️ 대화 기록을 저장하지 못했어요. 잠시 후 다시 시도해 주세요."
	MsgTransient   = "⚠️ AI 응답이 지연되고 있어요. 잠시 후 다시 시도해 주세요."
	MsgContent     = "⚠️ AI가 답변을 만들지 못했어요. 조금 다르게 말해 줄래요?"
	MsgGeneric     = "⚠️ 오류가 발생했어요. 잠시 후 다시 시도해 주세요."
	msgRateLimited = "⏳ 잠시만요! %d초 후에 다시 보내 주세요."
)

// UserMessage maps any error from this package's operations to one line
// suitable to post back into the room. Unclassified errors get MsgGeneric;
// their text can carry URLs, request ids or keys and belongs in the log.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var inErr *InputError
	var rl *guard.RateLimitedError
	var se *history.StorageError
	switch {
	case errors.As(err, &inErr):
		return MsgEmptyInput
	case errors.As(err, &rl):
		return fmt.Sprintf(msgRateLimited, int(math.Ceil(rl.Remaining.Seconds())))
	case errors.As(err, &se):
		return MsgStorage
	case errors.Is(err, llm.ErrTransient):
		return MsgTransient
	case errors.Is(err, llm.ErrContent):
		return MsgContent
	default:
		return MsgGeneric
	}
}
