package models

import (
	"path"
	"strings"
	"time"
)

// MediaKind 媒体类型
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
	MediaImage MediaKind = "image"
)

// Media 警报附带的媒体，创建后不可变
type Media struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alert_id,omitempty"`
	Kind      MediaKind `json:"kind"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	// 秒
	Duration *float64 `json:"duration,omitempty"`
	Size     *int64   `json:"size,omitempty"`
}

var extKinds = map[string]MediaKind{
	".mp3": MediaAudio, ".m4a": MediaAudio, ".aac": MediaAudio, ".wav": MediaAudio, ".ogg": MediaAudio, ".opus": MediaAudio,
	".mp4": MediaVideo, ".mov": MediaVideo, ".webm": MediaVideo, ".mkv": MediaVideo, ".3gp": MediaVideo,
	".jpg": MediaImage, ".jpeg": MediaImage, ".png": MediaImage, ".gif": MediaImage, ".webp": MediaImage, ".heic": MediaImage,
}

// ParseMediaKind 支持 audio/video/image、photo、MIME 类型，最后按扩展名推断
func ParseMediaKind(v string, url string) (MediaKind, bool) {
	s := strings.ToLower(strings.TrimSpace(v))
	if i := strings.IndexByte(s, '/'); i > 0 {
		s = s[:i]
	}
	switch s {
	case "audio", "voice", "recording":
		return MediaAudio, true
	case "video":
		return MediaVideo, true
	case "image", "photo", "picture":
		return MediaImage, true
	}
	u := strings.ToLower(url)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if k, ok := extKinds[path.Ext(u)]; ok {
		return k, true
	}
	return MediaImage, false
}

// MediaFromRow media 表行投影；URL 缺失时 ok 为 false
func MediaFromRow(r Row) (Media, bool) {
	url := r.String("url", "file_url", "media_url", "public_url", "storage_path", "path")
	kind, _ := ParseMediaKind(r.String("media_type", "kind", "type", "mime_type", "content_type"), url)
	m := Media{
		ID:   r.ID(),
		Kind: kind,
		URL:  url,
	}
	if ts, ok := r.Time("created_at", "timestamp", "uploaded_at", "recorded_at"); ok {
		m.Timestamp = ts
	}
	if d, ok := r.Float("duration", "duration_seconds", "length"); ok && d >= 0 {
		m.Duration = &d
	}
	if s, ok := r.Float("size", "file_size", "size_bytes", "bytes"); ok && s >= 0 {
		n := int64(s)
		m.Size = &n
	}
	if m.ID == "" {
		m.ID = url
	}
	return m, url != ""
}

// inlineMedia 旧版警报行直接携带的录音、录像和照片字段
func inlineMedia(r Row, alertID string, ts time.Time) []Media {
	var out []Media
	add := func(kind MediaKind, url string) {
		if url == "" {
			return
		}
		out = append(out, Media{ID: url, AlertID: alertID, Kind: kind, URL: url, Timestamp: ts})
	}
	add(MediaAudio, r.String("audio_url", "audio_recording"))
	add(MediaVideo, r.String("video_url", "video_recording"))
	if v, ok := r.Lookup("photos", "photo_urls", "images"); ok {
		for _, u := range asStrings(v) {
			add(MediaImage, u)
		}
	}
	return out
}
