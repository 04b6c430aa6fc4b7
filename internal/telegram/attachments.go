package telegram

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"claudima/internal/utils"
)

// downloadFile fetches fileID's bytes, streaming them to
// {data_dir}/attachments/tg_<file_id><ext> and skipping the download
// entirely if that path already exists (Telegram file ids are unique to
// content, per the teacher's glob-based skip check). suggestedExt, when
// non-empty, is used before falling back to MIME sniffing (Telegram's
// own FilePath extension is usually present and authoritative).
func (t *Transport) downloadFile(fileID, suggestedExt string) (path string, data []byte, mimeType string, err error) {
	info, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", nil, "", fmt.Errorf("telegram: get file info: %w", err)
	}

	if err := ensureAttachmentsDir(t.cfg.DataDir); err != nil {
		return "", nil, "", fmt.Errorf("telegram: create attachments dir: %w", err)
	}

	base := filepath.Join(attachmentsDir(t.cfg.DataDir), "tg_"+sanitizeFileID(fileID))
	if matches, _ := filepath.Glob(base + "*"); len(matches) > 0 {
		localPath := matches[0]
		data, err := os.ReadFile(localPath)
		if err != nil {
			return "", nil, "", fmt.Errorf("telegram: read cached attachment: %w", err)
		}
		mimeType, _ := utils.DetectMimeAndExt(data)
		return localPath, data, mimeType, nil
	}

	url := info.Link(t.cfg.Token)
	resp, err := t.httpClient.Get(url)
	if err != nil {
		return "", nil, "", fmt.Errorf("telegram: download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", nil, "", fmt.Errorf("telegram: download file: status %d", resp.StatusCode)
	}

	ext := filepath.Ext(info.FilePath)
	if ext == "" {
		ext = suggestedExt
	}
	localPath := base + ext

	out, err := os.Create(localPath)
	if err != nil {
		return "", nil, "", fmt.Errorf("telegram: create local file: %w", err)
	}
	data, err = io.ReadAll(resp.Body)
	if err != nil {
		out.Close()
		return "", nil, "", fmt.Errorf("telegram: read file body: %w", err)
	}
	if _, err := out.Write(data); err != nil {
		out.Close()
		return "", nil, "", fmt.Errorf("telegram: write local file: %w", err)
	}
	out.Close()

	mimeType, detectedExt := utils.DetectMimeAndExt(data)
	if ext == "" && detectedExt != "" {
		renamed := base + detectedExt
		if err := os.Rename(localPath, renamed); err == nil {
			localPath = renamed
		}
	}

	return localPath, data, mimeType, nil
}
