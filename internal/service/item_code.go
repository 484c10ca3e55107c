package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/veritag-api/internal/constants"
	"github.com/veritag-api/internal/models"

	"github.com/google/uuid"
)

// BuildQRCode 组合扫码串的确定性部分。
// 格式：{prefix}-{batchID}-{index}-{毫秒时间戳}-{随机熵}，
// 时间戳与熵由调用方传入，便于用固定输入做可复现测试。
func BuildQRCode(prefix string, batchID uint, index int, at time.Time, entropy string) string {
	if strings.TrimSpace(prefix) == "" {
		prefix = constants.DefaultQRCodePrefix
	}
	return fmt.Sprintf("%s-%d-%d-%d-%s", prefix, batchID, index, at.UnixMilli(), entropy)
}

// GenerateQRCode 生成扫码串（带当前时间与随机熵）
func GenerateQRCode(prefix string, batchID uint, index int) string {
	return BuildQRCode(prefix, batchID, index, time.Now(), randomEntropy())
}

// GenerateSerialNumber 生成序列号：{批次号}-{8位零填充的 startFrom+index}
func GenerateSerialNumber(batchCode string, index, startFrom int) string {
	sequence := startFrom + index
	return fmt.Sprintf("%s-%0*d", batchCode, constants.SerialSequenceDigits, sequence)
}

// ParseSerialSequence 解析序列号的数字后缀，失败返回 0
func ParseSerialSequence(serial string) int {
	idx := strings.LastIndex(serial, "-")
	if idx < 0 || idx == len(serial)-1 {
		return 0
	}
	sequence, err := strconv.Atoi(serial[idx+1:])
	if err != nil || sequence < 0 {
		return 0
	}
	return sequence
}

// BuildBatchItems 为 [startIndex, endIndex] 闭区间（0 起始的全局下标）构造单品。
// 序列号下标从 1 起：全局下标 p 的单品序号为 baseOffset+p+1。
func BuildBatchItems(batchID uint, batchCode string, startIndex, endIndex, baseOffset int, prefix string, now time.Time) []models.ProductItem {
	if endIndex < startIndex {
		return nil
	}
	items := make([]models.ProductItem, 0, endIndex-startIndex+1)
	for p := startIndex; p <= endIndex; p++ {
		items = append(items, models.ProductItem{
			BatchID:      batchID,
			QRCode:       GenerateQRCode(prefix, batchID, p+1),
			SerialNumber: GenerateSerialNumber(batchCode, p+1, baseOffset),
			ItemOrder:    baseOffset + p + 1,
			Status:       constants.ItemStatusUnscanned,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return items
}

func randomEntropy() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:6]
}
