package service

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/veritag-api/internal/constants"
	"github.com/veritag-api/internal/logger"
	"github.com/veritag-api/internal/models"
	"github.com/veritag-api/internal/repository"

	qrcode "github.com/skip2/go-qrcode"
)

// ArchiveServiceConfig 归档服务参数
type ArchiveServiceConfig struct {
	Dir           string
	PageSize      int
	PageDelay     time.Duration
	QRBaseURL     string
	QRImageSize   int
	WatermarkPath string
}

// ArchiveService 批次码图归档服务。
// 单品全部落库后把整批二维码图片打包成 zip，供后台一次性下载。
type ArchiveService struct {
	batchRepo repository.ProductBatchRepository
	itemRepo  repository.ProductItemRepository
	cfg       ArchiveServiceConfig
	watermark image.Image
}

// NewArchiveService 创建归档服务
func NewArchiveService(
	batchRepo repository.ProductBatchRepository,
	itemRepo repository.ProductItemRepository,
	cfg ArchiveServiceConfig,
) *ArchiveService {
	if cfg.Dir == "" {
		cfg.Dir = "data/archives"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if cfg.PageDelay < 0 {
		cfg.PageDelay = 0
	}
	if cfg.QRImageSize <= 0 {
		cfg.QRImageSize = 256
	}
	s := &ArchiveService{
		batchRepo: batchRepo,
		itemRepo:  itemRepo,
		cfg:       cfg,
	}
	if cfg.WatermarkPath != "" {
		wm, err := loadWatermark(cfg.WatermarkPath)
		if err != nil {
			logger.Warnw("archive_watermark_load_failed", "path", cfg.WatermarkPath, "error", err)
		} else {
			s.watermark = wm
		}
	}
	return s
}

// ArchiveFileName 批次压缩包文件名
func ArchiveFileName(batchID uint) string {
	return fmt.Sprintf("batch-%d-qrcodes.zip", batchID)
}

// ArchivePath 批次压缩包落盘路径
func (s *ArchiveService) ArchivePath(batchID uint) string {
	return filepath.Join(s.cfg.Dir, ArchiveFileName(batchID))
}

// DownloadLink 批次压缩包对外下载路径
func DownloadLink(batchID uint) string {
	return "/downloads/" + ArchiveFileName(batchID)
}

// BuildArchive 为批次生成码图压缩包。
// 先把批次状态从 pending 抢占为 archiving，抢占失败说明已有
// 别的工作进程在归档或批次已归档完成，直接返回。
func (s *ArchiveService) BuildArchive(batchID uint) error {
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return fmt.Errorf("归档前读取批次失败: %w", err)
	}
	if batch == nil {
		return ErrBatchNotFound
	}

	affected, err := s.batchRepo.TransitionGenerateStatus(
		batchID,
		[]string{constants.BatchGenerateStatusPending},
		constants.BatchGenerateStatusArchiving,
		nil,
	)
	if err != nil {
		return fmt.Errorf("抢占归档状态失败: %w", err)
	}
	if affected == 0 {
		logger.Debugw("archive_claim_skipped", "batch_id", batchID, "status", batch.GenerateStatus)
		return nil
	}

	if err := s.writeArchive(batch); err != nil {
		// 归档失败回退到 pending，保留重试空间
		if _, rerr := s.batchRepo.TransitionGenerateStatus(
			batchID,
			[]string{constants.BatchGenerateStatusArchiving},
			constants.BatchGenerateStatusPending,
			nil,
		); rerr != nil {
			logger.Errorw("archive_revert_status_failed", "batch_id", batchID, "error", rerr)
		}
		return fmt.Errorf("%w: %w", ErrArchiveCreateFailed, err)
	}

	affected, err = s.batchRepo.TransitionGenerateStatus(
		batchID,
		[]string{constants.BatchGenerateStatusArchiving},
		constants.BatchGenerateStatusCompleted,
		map[string]interface{}{"batch_link_download": DownloadLink(batchID)},
	)
	if err != nil {
		return fmt.Errorf("归档完成回写失败: %w", err)
	}
	if affected == 0 {
		logger.Warnw("archive_complete_transition_missed", "batch_id", batchID)
	}
	logger.Infow("archive_done", "batch_id", batchID, "path", s.ArchivePath(batchID))
	return nil
}

// writeArchive 流式写入压缩包：分页读单品，逐张渲染后写入 zip 条目
func (s *ArchiveService) writeArchive(batch *models.ProductBatch) error {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("创建归档目录失败: %w", err)
	}
	path := s.ArchivePath(batch.ID)
	// 旧包可能来自上次失败的归档，覆盖前先删掉
	_ = os.Remove(path)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建压缩包失败: %w", err)
	}
	zw := zip.NewWriter(file)

	fail := func(cause error) error {
		_ = zw.Close()
		_ = file.Close()
		_ = os.Remove(path)
		return cause
	}

	written := 0
	for page := 1; ; page++ {
		items, err := s.itemRepo.ListPageByBatch(batch.ID, page, s.cfg.PageSize)
		if err != nil {
			return fail(fmt.Errorf("归档分页读取失败: %w", err))
		}
		if len(items) == 0 {
			break
		}
		for i := range items {
			item := &items[i]
			img, err := s.renderItemImage(item)
			if err != nil {
				logger.Warnw("archive_render_failed",
					"batch_id", batch.ID, "qr_code", item.QRCode, "error", err)
				continue
			}
			entry, err := zw.Create(item.SerialNumber + ".png")
			if err != nil {
				return fail(fmt.Errorf("写入压缩包条目失败: %w", err))
			}
			if _, err := entry.Write(img); err != nil {
				return fail(fmt.Errorf("写入压缩包条目失败: %w", err))
			}
			written++
		}
		if len(items) < s.cfg.PageSize {
			break
		}
		if s.cfg.PageDelay > 0 {
			time.Sleep(s.cfg.PageDelay)
		}
	}

	if err := zw.Close(); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return fmt.Errorf("关闭压缩包失败: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("关闭压缩包失败: %w", err)
	}
	logger.Infow("archive_written", "batch_id", batch.ID, "entries", written)
	return nil
}

// renderItemImage 渲染单品二维码图片，配置了水印时叠加居中水印
func (s *ArchiveService) renderItemImage(item *models.ProductItem) ([]byte, error) {
	content := item.QRCode
	if s.cfg.QRBaseURL != "" {
		content = strings.TrimRight(s.cfg.QRBaseURL, "/") + "/" + item.QRCode
	}
	raw, err := qrcode.Encode(content, qrcode.Medium, s.cfg.QRImageSize)
	if err != nil {
		return nil, fmt.Errorf("二维码编码失败: %w", err)
	}
	if s.watermark == nil {
		return raw, nil
	}
	return overlayWatermark(raw, s.watermark)
}

// RemoveArchive 删除批次压缩包，文件不存在视为成功
func (s *ArchiveService) RemoveArchive(batchID uint) error {
	err := os.Remove(s.ArchivePath(batchID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ArchiveExists 批次压缩包是否已生成
func (s *ArchiveService) ArchiveExists(batchID uint) bool {
	info, err := os.Stat(s.ArchivePath(batchID))
	return err == nil && !info.IsDir()
}

func loadWatermark(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// overlayWatermark 把水印居中叠加到二维码图片上并重新编码为 PNG
func overlayWatermark(qrPNG []byte, watermark image.Image) ([]byte, error) {
	base, err := png.Decode(bytes.NewReader(qrPNG))
	if err != nil {
		return nil, fmt.Errorf("解码二维码图片失败: %w", err)
	}
	bounds := base.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, base, bounds.Min, draw.Src)

	wb := watermark.Bounds()
	offset := image.Pt(
		bounds.Min.X+(bounds.Dx()-wb.Dx())/2,
		bounds.Min.Y+(bounds.Dy()-wb.Dy())/2,
	)
	draw.Draw(canvas, wb.Sub(wb.Min).Add(offset), watermark, wb.Min, draw.Over)

	var out bytes.Buffer
	if err := png.Encode(&out, canvas); err != nil {
		return nil, fmt.Errorf("编码水印图片失败: %w", err)
	}
	return out.Bytes(), nil
}
