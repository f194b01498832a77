package proposal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewProposalID は提案の一意識別子を生成。
// フォーマット: YYYYMMDD_HHMMSS_{UUID先頭8文字}。
// 時刻接頭辞により辞書順ソート＝時系列ソートが成立し、
// UUIDサフィックスが同一秒内の衝突を防ぐ。
func NewProposalID() string {
	datePrefix := time.Now().Format("20060102_150405")
	uuidStr := uuid.New().String()[:8]
	return fmt.Sprintf("%s_%s", datePrefix, uuidStr)
}
