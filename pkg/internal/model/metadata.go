package model

import (
	"database/sql/driver"
	"time"

	"github.com/bytedance/sonic"
)

// MediaTranscript 单个附件的转写文本.
type MediaTranscript struct {
	BlobID     string `json:"blob_id"`
	Transcript string `json:"transcript"`
}

// FormDataMetadata 结构化富化结果.
type FormDataMetadata struct {
	VideoMetadata  []MediaTranscript `json:"video_metadata"`
	AudioMetadata  []MediaTranscript `json:"audio_metadata"`
	ImageMetadata  []MediaTranscript `json:"image_metadata"`
	StructuredData map[string]any    `json:"structured_data"`
	CreationTime   *time.Time        `json:"creation_time"`
}

// Transcripts 返回指定附件类型的转写列表指针，FILE 等无转写的类型返回 nil.
func (m *FormDataMetadata) Transcripts(t FieldType) *[]MediaTranscript {
	switch t {
	case FieldVideo:
		return &m.VideoMetadata
	case FieldAudio:
		return &m.AudioMetadata
	case FieldImage:
		return &m.ImageMetadata
	case FieldFile, FieldString, FieldNumber, FieldDate, FieldEmail, FieldPhone, FieldURL,
		FieldTextarea, FieldSelect, FieldRadio, FieldCheckbox, FieldZipcode:
		return nil
	default:
		return nil
	}
}

// Lookup 查找已存在的转写.
func (m *FormDataMetadata) Lookup(t FieldType, blobID string) (string, bool) {
	list := m.Transcripts(t)
	if list == nil {
		return "", false
	}

	for _, mt := range *list {
		if mt.BlobID == blobID {
			return mt.Transcript, true
		}
	}

	return "", false
}

// Put 写入转写，同一 blob id 只保留一条.
func (m *FormDataMetadata) Put(t FieldType, blobID, transcript string) {
	list := m.Transcripts(t)
	if list == nil {
		return
	}

	for i := range *list {
		if (*list)[i].BlobID == blobID {
			(*list)[i].Transcript = transcript
			return
		}
	}

	*list = append(*list, MediaTranscript{BlobID: blobID, Transcript: transcript})
}

// Retain 返回仅保留 values 中仍被引用的转写的副本.
func (m *FormDataMetadata) Retain(values Values) *FormDataMetadata {
	out := &FormDataMetadata{
		VideoMetadata: []MediaTranscript{},
		AudioMetadata: []MediaTranscript{},
		ImageMetadata: []MediaTranscript{},
	}

	if m == nil {
		return out
	}

	for _, item := range values.MediaItems() {
		if t, ok := m.Lookup(item.Type, item.Ref.ID); ok {
			out.Put(item.Type, item.Ref.ID, t)
		}
	}

	return out
}

// AllTranscripts 按视频、音频、图片顺序返回全部转写.
func (m *FormDataMetadata) AllTranscripts() []MediaTranscript {
	if m == nil {
		return nil
	}

	all := make([]MediaTranscript, 0, len(m.VideoMetadata)+len(m.AudioMetadata)+len(m.ImageMetadata))
	all = append(all, m.VideoMetadata...)
	all = append(all, m.AudioMetadata...)

	return append(all, m.ImageMetadata...)
}

// Value 实现 driver.Valuer.
func (m FormDataMetadata) Value() (driver.Value, error) {
	return sonic.ConfigStd.MarshalToString(m)
}

// Scan 实现 sql.Scanner.
func (m *FormDataMetadata) Scan(src any) error {
	b, err := scanBytes(src)
	if err != nil || len(b) == 0 {
		return err
	}

	return sonic.Unmarshal(b, m)
}

// StringList 以 JSON 数组存储的字符串列表.
type StringList []string

// Value 实现 driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}

	return sonic.ConfigStd.MarshalToString([]string(l))
}

// Scan 实现 sql.Scanner.
func (l *StringList) Scan(src any) error {
	b, err := scanBytes(src)
	if err != nil || len(b) == 0 {
		*l = StringList{}
		return err
	}

	return sonic.Unmarshal(b, (*[]string)(l))
}

// NormalizeList 去除两端空白与空项，按首次出现顺序大小写敏感去重，limit>0 时截断.
func NormalizeList(items []string, limit int) StringList {
	seen := map[string]struct{}{}
	out := StringList{}

	for _, it := range items {
		it = trimItem(it)
		if it == "" {
			continue
		}

		if _, ok := seen[it]; ok {
			continue
		}

		seen[it] = struct{}{}
		out = append(out, it)

		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out
}
