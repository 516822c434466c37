package enrich

import "github.com/yeisme/storyvault/pkg/internal/model"

// State 记录的富化进度，由记录内容推导，不单独存储.
type State string

const (
	StateNew         State = "NEW"
	StateTagged      State = "TAGGED"
	StateThemed      State = "THEMED"
	StateMetaPending State = "META_PENDING"
	StateMetaDone    State = "META_DONE"
	StateDeleted     State = "DELETED"
)

// StateOf 推导富化状态. locked 表示 record:{id} 当前被持有.
func StateOf(fd *model.FormData, locked bool) State {
	switch {
	case fd.IsDeleted():
		return StateDeleted
	case locked:
		return StateMetaPending
	case fd.Metadata != nil && fd.Metadata.CreationTime != nil:
		return StateMetaDone
	case len(fd.Themes) > 0:
		return StateThemed
	case len(fd.Tags) > 0:
		return StateTagged
	default:
		return StateNew
	}
}
