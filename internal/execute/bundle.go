package execute

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
)

// Bundle format:
// [4 bytes: header length (big-endian)]
// [header JSON: BundleHeader]
// [entry data...]
// The whole stream is zstd-compressed. The header describes each
// entry's path, offset (relative to data start), length, and BLAKE3
// digest.

const (
	headerLengthSize = 4
	maxHeaderSize    = 10 * 1024 * 1024
)

// BundleEntry locates one file inside the bundle data section.
type BundleEntry struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	Digest string `json:"digest"`
}

// BundleHeader describes a release bundle.
type BundleHeader struct {
	Run       string        `json:"run"`
	CreatedAt time.Time     `json:"createdAt"`
	Entries   []BundleEntry `json:"entries"`
}

// BundleFile is one file going into a bundle.
type BundleFile struct {
	Path    string
	Content []byte
}

// BuildBundle assembles and compresses a release bundle.
func BuildBundle(runID string, files []BundleFile) ([]byte, error) {
	header := BundleHeader{Run: runID, CreatedAt: time.Now().UTC()}
	var data bytes.Buffer

	for _, f := range files {
		digest := blake3.Sum256(f.Content)
		header.Entries = append(header.Entries, BundleEntry{
			Path:   f.Path,
			Offset: int64(data.Len()),
			Length: int64(len(f.Content)),
			Digest: hex.EncodeToString(digest[:]),
		})
		data.Write(f.Content)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling bundle header: %w", err)
	}

	var raw bytes.Buffer
	lenBuf := make([]byte, headerLengthSize)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(headerJSON)))
	raw.Write(lenBuf)
	raw.Write(headerJSON)
	raw.Write(data.Bytes())

	var compressed bytes.Buffer
	encoder, err := zstd.NewWriter(&compressed)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := encoder.Write(raw.Bytes()); err != nil {
		encoder.Close()
		return nil, fmt.Errorf("compressing bundle: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}
	return compressed.Bytes(), nil
}

// ReadBundle decompresses a bundle and returns its header plus file
// contents, verifying each entry's digest.
func ReadBundle(r io.Reader) (*BundleHeader, map[string][]byte, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing bundle: %w", err)
	}
	if len(raw) < headerLengthSize {
		return nil, nil, fmt.Errorf("bundle too small: %d bytes", len(raw))
	}

	headerLen := binary.BigEndian.Uint32(raw[:headerLengthSize])
	if headerLen > maxHeaderSize {
		return nil, nil, fmt.Errorf("bundle header too large: %d bytes", headerLen)
	}
	if int(headerLengthSize+headerLen) > len(raw) {
		return nil, nil, fmt.Errorf("bundle header length exceeds bundle size")
	}

	var header BundleHeader
	if err := json.Unmarshal(raw[headerLengthSize:headerLengthSize+headerLen], &header); err != nil {
		return nil, nil, fmt.Errorf("parsing bundle header: %w", err)
	}

	data := raw[headerLengthSize+headerLen:]
	files := make(map[string][]byte, len(header.Entries))
	for _, e := range header.Entries {
		if e.Offset < 0 || e.Offset+e.Length > int64(len(data)) {
			return nil, nil, fmt.Errorf("entry %s extends beyond bundle data", e.Path)
		}
		content := data[e.Offset : e.Offset+e.Length]
		digest := blake3.Sum256(content)
		if hex.EncodeToString(digest[:]) != e.Digest {
			return nil, nil, fmt.Errorf("digest mismatch for %s", e.Path)
		}
		files[e.Path] = content
	}
	return &header, files, nil
}
