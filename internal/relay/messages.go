package relay

import (
	"errors"
	"fmt"

	"github.com/chat-relay/relay/internal/nickname"
)

const welcomeText = "欢迎来到聊天室！请先设置昵称。"

func rejectionText(err error) string {
	var verr *nickname.ValidationError
	switch {
	case errors.Is(err, nickname.ErrInvalidLength):
		return fmt.Sprintf("昵称长度必须在 %d 到 %d 个字符之间", nickname.MinLength, nickname.MaxLength)
	case errors.As(err, &verr) && errors.Is(err, nickname.ErrNameTaken):
		return fmt.Sprintf("昵称 \"%s\" 已被占用，请换一个", verr.Name)
	default:
		return "昵称无效"
	}
}

func confirmationText(name string) string {
	return fmt.Sprintf("昵称设置成功：%s", name)
}

func joinText(name string) string {
	return fmt.Sprintf("%s 加入了聊天室", name)
}

func renameText(from, to string) string {
	return fmt.Sprintf("%s 更名为 %s", from, to)
}

func leaveText(name string) string {
	return fmt.Sprintf("%s 离开了聊天室", name)
}
