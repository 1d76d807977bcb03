package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/fachebot/ai-news-digest/internal/artifact"
	"github.com/fachebot/ai-news-digest/internal/content"
	"github.com/zeebo/blake3"
)

// 指纹哈希的域分隔键，修改会使所有已存储的指纹失效
var domainKey = [32]byte{
	'a', 'i', '-', 'n', 'e', 'w', 's', '.', 'd', 'i', 'g', 'e', 's', 't', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't', '.', 'v', '1', 0, 0, 0,
}

// Tuple 参与指纹计算的最小单元
type Tuple struct {
	ID     string
	Type   string
	Source string
	Text   string
}

func (t Tuple) normalize() Tuple {
	return Tuple{
		ID:     strings.TrimSpace(t.ID),
		Type:   strings.TrimSpace(t.Type),
		Source: strings.TrimSpace(t.Source),
		Text:   normalizeText(t.Text),
	}
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

func less(a, b Tuple) bool {
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.Text < b.Text
}

// Compute 计算一组元组的指纹，与输入顺序无关
func Compute(tuples []Tuple) string {
	sorted := make([]Tuple, len(tuples))
	for i, t := range tuples {
		sorted[i] = t.normalize()
	}
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var lenBuf [8]byte
	writeField := func(s string) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
		hasher.Write(lenBuf[:])
		hasher.Write([]byte(s))
	}
	for _, t := range sorted {
		writeField(t.ID)
		writeField(t.Type)
		writeField(t.Source)
		writeField(t.Text)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// RecordTuple 将内容记录转为指纹元组，标题计入文本
func RecordTuple(r content.Record) Tuple {
	text := r.Text
	if r.Title != "" {
		text = r.Title + "\n" + r.Text
	}
	return Tuple{ID: r.ID, Type: r.Type, Source: r.Source, Text: text}
}

// Records 计算内容记录集合的指纹
func Records(records []content.Record) string {
	tuples := make([]Tuple, len(records))
	for i, r := range records {
		tuples[i] = RecordTuple(r)
	}
	return Compute(tuples)
}

// StoredTuple 将已存储的每日报告转为指纹元组
func StoredTuple(s *artifact.Stored) Tuple {
	return Tuple{
		ID:     s.Date,
		Type:   s.Type,
		Source: string(s.Granularity),
		Text:   s.Fingerprint + "\n" + s.Markdown,
	}
}

// Artifacts 计算一组已存储报告的指纹
func Artifacts(stored []*artifact.Stored) string {
	tuples := make([]Tuple, len(stored))
	for i, s := range stored {
		tuples[i] = StoredTuple(s)
	}
	return Compute(tuples)
}
